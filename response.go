package envcipher

import (
	"encoding/json"
	"fmt"

	"github.com/hirelens/envcipher/crypto"
)

// EnvVar is one environment-variable record in a backend response. When
// Encrypted is true, Value holds a ciphertext token.
type EnvVar struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Encrypted bool   `json:"encrypted"`
}

// EnvResponse is the backend response shape carrying environment-variable
// records.
type EnvResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message,omitempty"`
	Variables []EnvVar `json:"variables"`
}

// DecryptResponse returns a copy of resp in which every encrypted record's
// value has been decrypted with the given secret and its encrypted flag
// cleared. The input is never mutated.
//
// Responses that do not indicate success or carry no variable list are
// returned as an unchanged copy, not an error. Decryption is fail-fast:
// the first record that fails aborts the batch and returns the cipher
// error with no partial results.
func DecryptResponse(resp *EnvResponse, secret string) (*EnvResponse, error) {
	if resp == nil {
		return nil, nil
	}

	out := *resp
	if !resp.Success || resp.Variables == nil {
		return &out, nil
	}

	variables := make([]EnvVar, len(resp.Variables))
	copy(variables, resp.Variables)
	for i := range variables {
		if !variables[i].Encrypted {
			continue
		}
		plaintext, err := crypto.DecryptValue(secret, variables[i].Value)
		if err != nil {
			return nil, err
		}
		variables[i].Value = plaintext
		variables[i].Encrypted = false
	}

	out.Variables = variables
	return &out, nil
}

// DecryptResponseJSON decrypts a raw JSON response document in the
// EnvResponse shape. Unlike DecryptResponse it operates on the generic
// document, so fields outside the known shape pass through untouched.
// Documents without a true success flag or a variables list are returned
// unchanged.
func DecryptResponseJSON(data []byte, secret string) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	success, _ := doc["success"].(bool)
	records, ok := doc["variables"].([]interface{})
	if !success || !ok {
		return data, nil
	}

	for _, raw := range records {
		record, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		encrypted, _ := record["encrypted"].(bool)
		if !encrypted {
			continue
		}
		token, ok := record["value"].(string)
		if !ok {
			return nil, crypto.NewTokenError(crypto.ErrInvalidToken,
				fmt.Errorf("encrypted record value is not a string"))
		}
		plaintext, err := crypto.DecryptValue(secret, token)
		if err != nil {
			return nil, err
		}
		record["value"] = plaintext
		record["encrypted"] = false
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return out, nil
}
