package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/avuweb/membership/svc/coupon"
)

var couponCmd = &cobra.Command{
	Use:   "coupon",
	Short: "Manage single-use access coupons",
}

var (
	couponExpires   string
	couponMonths    int
	couponCreatedBy string
)

var couponCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a coupon",
	Long: `Create a single-use coupon that grants access when redeemed.

--expires takes a duration (2160h) or a date (2025-12-31). The default is
three months from now.

Examples:
  membership coupon create
  membership coupon create --expires 2025-12-31 --created-by admin@avuweb.uy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		expiresAt, err := parseExpiry(couponExpires, time.Now())
		if err != nil {
			return err
		}

		_, coupons, err := app.Entitlements(cmd.Context())
		if err != nil {
			return err
		}

		c, err := coupons.Create(cmd.Context(), coupon.CreateParams{
			CreatedBy:        couponCreatedBy,
			ExpiresAt:        expiresAt,
			MonthsOfValidity: couponMonths,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Coupon %s expires %s\n", c.Code, c.ExpiresAt.Format(time.DateOnly))
		return nil
	},
}

var couponListCmd = &cobra.Command{
	Use:   "list",
	Short: "List coupons",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, coupons, err := app.Entitlements(cmd.Context())
		if err != nil {
			return err
		}

		list, err := coupons.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No coupons")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tEXPIRES\tUSED BY\tUSED AT")
		for _, c := range list {
			usedBy, usedAt := "-", "-"
			if c.UsedBy != nil {
				usedBy = *c.UsedBy
			}
			if c.UsedAt != nil {
				usedAt = c.UsedAt.Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Code, c.ExpiresAt.Format(time.DateOnly), usedBy, usedAt)
		}
		return w.Flush()
	},
}

// parseExpiry accepts an empty value, a Go duration or a calendar date.
// A date expires at the end of that day in UTC.
func parseExpiry(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.AddDate(0, coupon.DefaultMonthsOfValidity, 0), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return time.Time{}, coupon.ErrInvalidExpiry
		}
		return now.Add(d), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --expires %q: want a duration or YYYY-MM-DD", raw)
	}
	return day.Add(24*time.Hour - time.Second), nil
}

func init() {
	couponCreateCmd.Flags().StringVar(&couponExpires, "expires", "", "expiry as a duration or YYYY-MM-DD (default 3 months)")
	couponCreateCmd.Flags().IntVar(&couponMonths, "months", coupon.DefaultMonthsOfValidity, "months of access the coupon represents")
	couponCreateCmd.Flags().StringVar(&couponCreatedBy, "created-by", "", "who issued the coupon")

	couponCmd.AddCommand(couponCreateCmd, couponListCmd)
}
