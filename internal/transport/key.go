package transport

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
)

// HashTLSConfig summarizes the parts of a tls.Config that affect which
// pooled connections a request may reuse (client certs, min version,
// custom root pool identity) into a short, stable string for the pool
// key (§ GLOSSARY "Pool key").
func HashTLSConfig(cfg *tls.Config) string {
	if cfg == nil {
		return "default"
	}
	h := sha256.New()
	fmt.Fprintf(h, "min=%d max=%d certs=%d rootsptr=%p", cfg.MinVersion, cfg.MaxVersion, len(cfg.Certificates), cfg.RootCAs)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
