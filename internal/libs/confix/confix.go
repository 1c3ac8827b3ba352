// Package confix applies changes to a node's config.toml so that it is
// valid for the current release. Comments and layout of the input are kept
// wherever the edits allow it.
package confix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creachadair/tomledit"
	"github.com/spf13/viper"

	"github.com/unwalled/unwalled/config"
	uwos "github.com/unwalled/unwalled/libs/os"
)

// Upgrade reads the configuration file at configPath and applies any
// transformations necessary to upgrade it to the current version. If this
// succeeds, the transformed output is written to out, or to outputPath if
// out is nil.
//
// The result is checked to decode into a valid config before anything is
// written.
func Upgrade(ctx context.Context, configPath, outputPath string, out io.Writer) error {
	if configPath == "" {
		return errors.New("empty input configuration path")
	}

	doc, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := plan.Apply(ctx, doc); err != nil {
		return fmt.Errorf("updating %q: %w", configPath, err)
	}

	var buf bytes.Buffer
	if err := tomledit.Format(&buf, doc); err != nil {
		return fmt.Errorf("formatting config: %w", err)
	}

	if err := CheckValid(buf.Bytes()); err != nil {
		return fmt.Errorf("updated config is invalid: %w", err)
	}

	if out != nil {
		_, err = out.Write(buf.Bytes())
		return err
	}
	if outputPath == "" {
		outputPath = configPath
	}
	return uwos.WriteFileAtomic(outputPath, buf.Bytes(), 0644)
}

// CheckValid checks whether the specified config appears to be a valid
// node config file. It starts from the defaults, so keys the file omits
// are not an error.
func CheckValid(data []byte) error {
	v := viper.New()
	v.SetConfigType("toml")

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return cfg.ValidateBasic()
}

// LoadConfig loads and parses the TOML document from path.
func LoadConfig(path string) (*tomledit.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tomledit.Parse(f)
}
