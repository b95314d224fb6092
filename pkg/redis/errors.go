package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
	ErrLeaseKeyEmpty                = errors.New("lease key is empty")
	ErrLeaseFailed                  = errors.New("failed to acquire lease")
	ErrLeaseTTLInvalid              = errors.New("lease ttl must be positive")
	ErrLeaseLost                    = errors.New("lease expired or taken by another holder")
)
