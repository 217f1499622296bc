package vaultcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/avelancourt/passguard/internal/backup"
	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/vault"
	"github.com/caarlos0/env/v11"
)

// Config holds the S3 backup target, read from the environment.
type Config struct {
	S3RootUser     string `env:"S3_ROOT_USER" envDefault:"admin"`
	S3RootPassword string `env:"S3_ROOT_PASSWORD" envDefault:"secretpassword"`
	S3Bucket       string `env:"S3_BUCKET" envDefault:"vault-backups"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3BaseEndpoint string `env:"S3_BASE_ENDPOINT" envDefault:"http://127.0.0.1:9000/"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App runs one subcommand per invocation: export, import, backup, restore,
// or list.
type App struct {
	store *backup.Store
	out   io.Writer
}

func NewApp(cfg *Config) *App {
	return &App{
		store: backup.NewStore(backup.Config{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		}),
		out: os.Stdout,
	}
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vaultcli <export|import|backup|restore|list> ...")
	}

	switch args[0] {
	case "export":
		return a.export(args[1:])
	case "import":
		return a.importCmd(args[1:])
	case "backup":
		return a.backup(ctx, args[1:])
	case "restore":
		return a.restore(ctx, args[1:])
	case "list":
		return a.list(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// export encrypts a plaintext vault JSON file into a .pgvault envelope.
func (a *App) export(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultcli export <vault.json> <out" + vault.Ext + ">")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	data := &vault.Data{}
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("vault file is not valid JSON: %w", err)
	}

	passphrase, err := GetNewPassphrase(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	data.ExportedAt = time.Now()
	envl, err := vault.Encrypt(data, passphrase)
	if err != nil {
		return err
	}

	path, err := vault.WriteFile(args[1], envl)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d entries to %s\n", len(data.Passwords), path)
	return nil
}

// importCmd decrypts a .pgvault file and merges it into a plaintext vault
// JSON file. Mode is merge, skip, or overwrite.
func (a *App) importCmd(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: vaultcli import <in" + vault.Ext + "> <vault.json> <merge|skip|overwrite>")
	}
	mode := vault.ImportMode(args[2])
	switch mode {
	case vault.ModeMerge, vault.ModeSkip, vault.ModeOverwrite:
	default:
		return fmt.Errorf("unknown import mode %q", args[2])
	}

	envl, err := vault.ReadFile(args[0])
	if err != nil {
		return err
	}

	passphrase, err := GetPassphrase(a.out, "Enter passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	imported, err := vault.Decrypt(envl, passphrase)
	if err != nil {
		return err
	}

	existing := &vault.Data{}
	if raw, err := os.ReadFile(args[1]); err == nil {
		if err := json.Unmarshal(raw, existing); err != nil {
			return fmt.Errorf("existing vault is not valid JSON: %w", err)
		}
	}

	merged, stats := vault.MergeItems(existing.Passwords, imported.Passwords, mode)
	existing.Passwords = merged
	existing.Version = imported.Version

	raw, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], raw, 0o600); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "imported: %d added, %d updated, %d skipped\n",
		stats.Added, stats.Updated, stats.Skipped)
	return nil
}

// backup pushes an already-exported .pgvault file to the S3 bucket.
func (a *App) backup(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultcli backup <in" + vault.Ext + "> <user-id>")
	}

	envl, err := vault.ReadFile(args[0])
	if err != nil {
		return err
	}

	key := backup.ObjectKey(args[1], time.Now())
	if err := a.store.Upload(ctx, key, envl); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %s\n", key)
	return nil
}

// restore fetches a backup object and writes it as a local .pgvault file.
func (a *App) restore(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: vaultcli restore <object-key> <out" + vault.Ext + ">")
	}

	envl, err := a.store.Download(ctx, args[0])
	if err != nil {
		return err
	}

	path, err := vault.WriteFile(args[1], envl)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "restored to %s\n", path)
	return nil
}

func (a *App) list(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vaultcli list <user-id>")
	}

	keys, err := a.store.List(ctx, args[0])
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(a.out, key)
	}
	return nil
}
