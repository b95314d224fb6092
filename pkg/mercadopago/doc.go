// Package mercadopago is a small client for the MercadoPago subscription
// and checkout preference endpoints.
//
// Requests are authenticated with a static bearer token through an
// oauth2.Transport and routed through a circuit breaker. Every failure is a
// *ProviderError which unwraps to ErrProviderError; use IsRetryable to decide
// whether a call should be attempted again.
//
//	client, err := mercadopago.New(cfg, mercadopago.WithLogger(log))
//	remote, err := client.GetSubscription(ctx, "PA-1")
package mercadopago
