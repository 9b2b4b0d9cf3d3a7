package tradeadapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// binanceSigner computes Binance's query-string HMAC-SHA256 signature: a
// small value holding the secret plus a method returning the derived
// signature.
type binanceSigner struct {
	apiKey    string
	secretKey string
}

// sign returns the hex-encoded HMAC-SHA256 of query under the secret key.
func (s binanceSigner) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// okexSigner computes OKEx's HMAC-SHA256+Base64 request signature.
type okexSigner struct {
	apiKey     string
	secretKey  string
	passphrase string
}

// sign returns the base64-encoded HMAC-SHA256 of
// timestamp+method+requestPath+body under the secret key.
func (s okexSigner) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
