package webhook

import "errors"

var (
	errMissingSignature   = errors.New("webhook: missing X-Line-Signature header")
	errMalformedSignature = errors.New("webhook: X-Line-Signature is not valid base64")
	errSignatureMismatch  = errors.New("webhook: signature mismatch")
)
