package tpay

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// SignToken derives the request signature: the terminal password joins the
// payload fields, field names are sorted lexicographically, and the values
// are concatenated in that order before hashing. Any pre-existing Token
// field is excluded from the signed set.
func SignToken(fields map[string]string, password string) string {
	merged := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		if k == "Token" {
			continue
		}
		merged[k] = v
	}
	merged["Password"] = password

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(merged[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
