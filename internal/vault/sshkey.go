package vault

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/tamalehq/tamalebot/internal/audit"
)

// GenerateSSHKey creates an Ed25519 keypair, stores the private key under
// name and the public key under {name}_PUB, and returns the public key as a
// single authorized-keys line with comment "tamalebot-{name lowercased}".
func (v *Vault) GenerateSSHKey(ctx context.Context, name string) (string, error) {
	if !nameRe.MatchString(name) {
		return "", ErrInvalidName
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("vault: generate keypair: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("vault: encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("vault: encode public key: %w", err)
	}
	comment := "tamalebot-" + strings.ToLower(name)
	pubLine := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + comment

	if err := v.Set(ctx, name, string(privPEM), SetOptions{
		Type:        TypeSSHKey,
		Description: "generated ed25519 private key",
	}); err != nil {
		return "", err
	}
	if err := v.Set(ctx, name+"_PUB", pubLine, SetOptions{
		Type:        TypeSSHPublicKey,
		Description: "generated ed25519 public key",
	}); err != nil {
		return "", err
	}

	v.log("vault_generate_key", name, audit.DecisionAllowed, "")
	return pubLine, nil
}
