// secrets-init 把站点凭据从环境变量写入 badger 凭据库。
// 用法：
//
//	CRASHER_SITE_USERNAME=... CRASHER_SITE_PASSWORD=... \
//	CRASHER_SECRETS_KEY=<32字节 hex/base64> secrets-init -badger data/secrets.badger
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/crasher/pkg/secretstore"
)

func main() {
	var (
		dbPath    = flag.String("badger", getenv("CRASHER_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("CRASHER_SECRETS_KEY", ""), "badger encryption key (32 bytes base64/hex)")
	)
	flag.Parse()

	_ = godotenv.Load()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set CRASHER_SECRETS_KEY or pass -secret-key"))
	}

	entries := map[string]string{
		secretstore.KeySiteUsername: os.Getenv("CRASHER_SITE_USERNAME"),
		secretstore.KeySitePassword: os.Getenv("CRASHER_SITE_PASSWORD"),
		secretstore.KeyBetAPIToken:  os.Getenv("CRASHER_BET_API_TOKEN"),
	}
	if entries[secretstore.KeySiteUsername] == "" || entries[secretstore.KeySitePassword] == "" {
		fatal(fmt.Errorf("CRASHER_SITE_USERNAME 和 CRASHER_SITE_PASSWORD 必须设置"))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written := 0
	for k, v := range entries {
		if v == "" {
			continue
		}
		if err := ss.SetString(k, v); err != nil {
			fatal(err)
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "已写入 %d 项凭据到 badger：%s\n", written, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
