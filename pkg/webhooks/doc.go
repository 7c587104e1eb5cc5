// Package webhooks forwards audit events to an HTTP endpoint.
//
// A Forwarder implements audit.Logger. Each event is serialized as JSON and
// POSTed from a small worker pool, so request handlers never wait on the
// receiver. Combine it with a file logger through audit.NewMultiLogger.
//
//	fwd, err := webhooks.NewForwarder(ctx, webhooks.Config{
//		URL:    "https://siem.example.com/hooks/gatekeeper",
//		Secret: os.Getenv("GATEKEEPER_AUDIT_WEBHOOK_SECRET"),
//		Events: []audit.EventType{audit.EventTypeGrantRoleAssign},
//	}, logger)
//
// # Headers
//
// Every delivery carries X-Gatekeeper-Event, X-Gatekeeper-Event-ID and
// X-Gatekeeper-Delivery. When a secret is configured the body is signed with
// HMAC-SHA256 in X-Gatekeeper-Signature ("sha256=<hex>"); receivers check it
// with VerifySignature.
//
// # Retry Policy
//
// Network errors, 429 and 5xx responses are retried with exponential backoff
// (1s, 2s, 4s, 8s by default, capped at one minute, five attempts). Other 4xx
// responses are final.
package webhooks
