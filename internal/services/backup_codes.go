package services

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	BackupCodeCount  = 10
	BackupCodeLength = 8
)

const backupCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateBackupCodes returns BackupCodeCount distinct single-use codes.
func GenerateBackupCodes() ([]string, error) {
	seen := make(map[string]struct{}, BackupCodeCount)
	codes := make([]string, 0, BackupCodeCount)
	for len(codes) < BackupCodeCount {
		code, err := randomBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func randomBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(BackupCodeLength)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < BackupCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// consumeBackupCode looks for code, upper-cased, in codes. On a hit it returns
// a new slice without that one entry; codes itself is left untouched.
func consumeBackupCode(codes []string, code string) ([]string, bool) {
	candidate := strings.ToUpper(strings.TrimSpace(code))
	if candidate == "" {
		return codes, false
	}
	for i, c := range codes {
		if c == candidate {
			remaining := make([]string, 0, len(codes)-1)
			remaining = append(remaining, codes[:i]...)
			remaining = append(remaining, codes[i+1:]...)
			return remaining, true
		}
	}
	return codes, false
}
