package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/radiumlabs/radium/pkg/store"
)

var (
	flagRoot   string
	flagConfig string
)

// cliConfig is the optional radium.toml. The engine itself takes no
// configuration files; this only tells the CLI where the store lives.
type cliConfig struct {
	Root string `toml:"root"`
}

// resolveRoot picks the store root: --root flag, then radium.toml (from
// --config or the working directory), then ./.radium-store.
func resolveRoot() (string, error) {
	if flagRoot != "" {
		return filepath.Abs(flagRoot)
	}

	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = "radium.toml"
	}
	var cfg cliConfig
	if _, err := toml.DecodeFile(cfgPath, &cfg); err == nil && cfg.Root != "" {
		return filepath.Abs(cfg.Root)
	} else if flagConfig != "" {
		// An explicitly named config that does not parse is an error.
		if err != nil {
			return "", fmt.Errorf("config %s: %w", cfgPath, err)
		}
	}

	return filepath.Abs(".radium-store")
}

// openStore opens the store on the native filesystem.
func openStore() (*store.Store, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	return store.New(root, store.Config{}), nil
}

// parseOrigin builds an origin from a kind name and a JSON input argument.
func parseOrigin(kind, inputJSON string) (store.Origin, error) {
	o := store.Origin{Kind: kind}
	if inputJSON == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(inputJSON), &o.Input); err != nil {
		return o, fmt.Errorf("parse input %q: %w", inputJSON, err)
	}
	return o, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
