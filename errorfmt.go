package broute

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/hkdf"
)

// ErrorBody is the body of every error response produced by the root scope.
type ErrorBody struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Metadata any    `json:"metadata,omitempty"`
}

// ErrorEnvelope wraps [ErrorBody] as {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorDetail is the operator facing detail of an internal error, encrypted into the envelope's metadata.
type ErrorDetail struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Stack   []string `json:"stack"`
}

// ErrorFormatter renders errors into envelopes. With a secret it attaches the encrypted detail of internal errors,
// without one that detail is left out.
type ErrorFormatter struct {
	aead cipher.AEAD
}

// NewErrorFormatter creates a formatter. An empty secret disables detail encryption.
func NewErrorFormatter(secret string) (*ErrorFormatter, error) {
	if secret == "" {
		return &ErrorFormatter{}, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("broute error detail")), key); err != nil {
		return nil, errors.Wrap(err, "derive key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "init gcm")
	}

	return &ErrorFormatter{aead: aead}, nil
}

type errorFormatterEnv struct {
	Secret string `env:"BROUTE_ERROR_SECRET"`
}

// ErrorFormatterFromEnv creates a formatter with the secret from the BROUTE_ERROR_SECRET environment variable.
func ErrorFormatterFromEnv() (*ErrorFormatter, error) {
	cfg, err := env.ParseAs[errorFormatterEnv]()
	if err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	return NewErrorFormatter(cfg.Secret)
}

// ErrorName returns the name used as the code of an internal error: the Name() of the error if it has one, "Error"
// otherwise.
func ErrorName(err error) string {
	var named interface{ Name() string }
	if errors.As(err, &named) && named.Name() != "" {
		return named.Name()
	}

	return "Error"
}

// Format returns the status code and envelope for err. Application errors keep their own status, code, message and
// metadata. Anything else, validation errors included, is a 500 named after the error. The failed fields of a
// validation error stay available through [Error.Fields] for exception handlers that want a 4xx instead.
func (f *ErrorFormatter) Format(requestID string, err error) (int, ErrorEnvelope) {
	berr, _ := AsError(err)

	if KindOf(err) == KindApplication {
		return int(berr.Code()), ErrorEnvelope{ErrorBody{
			ID:       requestID,
			Code:     berr.Name(),
			Message:  berr.Message(),
			Metadata: berr.Metadata(),
		}}
	}

	body := ErrorBody{ID: requestID, Code: ErrorName(err), Message: err.Error()}
	if berr != nil {
		body.Message = berr.Message()
	}

	// a failure to encrypt only loses the operator detail
	if detail, encErr := f.EncryptDetail(err); encErr == nil && detail != "" {
		body.Metadata = detail
	}

	return http.StatusInternalServerError, ErrorEnvelope{body}
}

// EncryptDetail encrypts the name, message and stack of err as "hex(ciphertext)$hex(nonce)". It returns an empty
// string when the formatter has no secret.
func (f *ErrorFormatter) EncryptDetail(err error) (string, error) {
	if f.aead == nil {
		return "", nil
	}

	plain, merr := json.Marshal(ErrorDetail{
		Name:    ErrorName(err),
		Message: err.Error(),
		Stack:   strings.Split(fmt.Sprintf("%+v", err), "\n"),
	})
	if merr != nil {
		return "", errors.Wrap(merr, "marshal detail")
	}

	nonce := make([]byte, f.aead.NonceSize())
	if _, rerr := rand.Read(nonce); rerr != nil {
		return "", errors.Wrap(rerr, "read nonce")
	}

	return hex.EncodeToString(f.aead.Seal(nil, nonce, plain, nil)) + "$" + hex.EncodeToString(nonce), nil
}

// DecryptDetail reverses EncryptDetail.
func (f *ErrorFormatter) DecryptDetail(s string) (*ErrorDetail, error) {
	if f.aead == nil {
		return nil, errors.New("formatter has no secret")
	}

	ctHex, nonceHex, ok := strings.Cut(s, "$")
	if !ok {
		return nil, errors.New("malformed detail, expected ciphertext$nonce")
	}

	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode ciphertext")
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != f.aead.NonceSize() {
		return nil, errors.New("malformed nonce")
	}

	plain, err := f.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	var detail ErrorDetail
	if err := json.Unmarshal(plain, &detail); err != nil {
		return nil, errors.Wrap(err, "unmarshal detail")
	}

	return &detail, nil
}

// rootExceptionHandler is the exception handler of the implicit root namespace. It always produces a response.
func (f *ErrorFormatter) rootExceptionHandler(_ context.Context, rc *RoutingContext, err error) (*Response, error) {
	status, env := f.Format(rc.RequestID(), err)

	return rc.JSON(env, WithStatus(status))
}
