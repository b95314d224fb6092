package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/avuweb/membership/svc/entitlement"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type fixtureFile struct {
	Profiles []fixtureProfile `yaml:"profiles"`
}

type fixtureProfile struct {
	UserID         string `yaml:"user_id"`
	UserType       string `yaml:"user_type"`
	Email          string `yaml:"email"`
	FullName       string `yaml:"full_name"`
	IdentityNumber string `yaml:"identity_number"`
	PhoneNumber    string `yaml:"phone_number"`
	Address        string `yaml:"address"`
	RUT            string `yaml:"rut"`
}

// parseFixtures decodes profiles. user_id defaults to the email.
func parseFixtures(data []byte) ([]entitlement.Profile, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	out := make([]entitlement.Profile, 0, len(f.Profiles))
	for i, p := range f.Profiles {
		userID := strings.TrimSpace(p.UserID)
		if userID == "" {
			userID = strings.TrimSpace(p.Email)
		}
		if userID == "" {
			return nil, fmt.Errorf("profile %d: user_id or email is required", i)
		}
		ut := entitlement.UserType(p.UserType)
		if !ut.Valid() {
			return nil, fmt.Errorf("profile %s: %w", userID, entitlement.ErrInvalidUserType)
		}
		out = append(out, entitlement.Profile{
			UserID:         userID,
			UserType:       ut,
			Email:          p.Email,
			FullName:       p.FullName,
			IdentityNumber: p.IdentityNumber,
			PhoneNumber:    p.PhoneNumber,
			Address:        p.Address,
			RUT:            p.RUT,
		})
	}
	return out, nil
}

type profileCreator interface {
	GetProfile(ctx context.Context, userID string) (*entitlement.Profile, error)
	CreateProfile(ctx context.Context, p entitlement.Profile) (*entitlement.Profile, error)
}

// seedProfiles creates missing profiles and leaves existing ones untouched.
func seedProfiles(ctx context.Context, svc profileCreator, profiles []entitlement.Profile, out io.Writer) (created, skipped int, err error) {
	for _, p := range profiles {
		_, err := svc.GetProfile(ctx, p.UserID)
		switch {
		case err == nil:
			fmt.Fprintf(out, "skip    %-24s %s (exists)\n", p.UserID, p.UserType)
			skipped++
			continue
		case !errors.Is(err, entitlement.ErrProfileNotFound):
			return created, skipped, err
		}

		if _, err := svc.CreateProfile(ctx, p); err != nil {
			return created, skipped, err
		}
		fmt.Fprintf(out, "created %-24s %s %s\n", p.UserID, p.UserType, p.FullName)
		created++
	}
	return created, skipped, nil
}

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create test profiles",
	Long: `Create test member profiles from a YAML file.

Without --file the built-in set of five socios and two empresas is used.
Profiles that already exist are skipped.

Examples:
  membership seed
  membership seed --file fixtures/staging.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data := defaultFixtures
		if seedFile != "" {
			b, err := os.ReadFile(seedFile)
			if err != nil {
				return err
			}
			data = b
		}

		profiles, err := parseFixtures(data)
		if err != nil {
			return err
		}

		ents, _, err := app.Entitlements(cmd.Context())
		if err != nil {
			return err
		}

		created, skipped, err := seedProfiles(cmd.Context(), ents, profiles, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d skipped\n", created, skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML fixtures file")
}
