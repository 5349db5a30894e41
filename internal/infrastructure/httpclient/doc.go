// Package httpclient builds the HTTP client shared by the readiness probe,
// the headless surface and the deskshellctl CLI.
//
// Built on go-resty/resty with a go-retryablehttp transport:
//   - Per-request context cancellation
//   - Configurable resty retries with backoff
//   - Token bucket rate limiting per client
//
// Example Usage:
//
//	client := httpclient.New(httpclient.Options{Timeout: 2 * time.Second})
//	if err := client.Probe(ctx, "http://127.0.0.1:8080/health"); err != nil {
//		// not ready yet
//	}
package httpclient
