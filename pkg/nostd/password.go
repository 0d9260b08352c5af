package nostd

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const apiTokenBytes = 24

func BcryptEncode(password []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
}

func BcryptMatch(hashedPassword, password []byte) error {
	return bcrypt.CompareHashAndPassword(hashedPassword, password)
}

// NewAPIToken 生成随机令牌，配置里只保存哈希
func NewAPIToken() (token, hash string, err error) {
	buf := make([]byte, apiTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	hashed, err := BcryptEncode([]byte(token))
	if err != nil {
		return "", "", err
	}
	return token, string(hashed), nil
}
