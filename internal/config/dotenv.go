package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnvFiles exports dotenv values that are not already set. Earlier
// files win, so pass the most specific file first.
func loadDotEnvFiles(paths ...string) error {
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		for k, v := range values {
			if existing, ok := os.LookupEnv(k); ok && existing != "" {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}
