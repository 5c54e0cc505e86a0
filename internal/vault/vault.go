// Package vault stores credentials encrypted at rest on a storage backend.
//
// The encryption key is derived from a source secret and the agent identity,
// so a vault blob written for one agent cannot be decrypted by another even
// with the same source secret.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tamalehq/tamalebot/internal/audit"
	"github.com/tamalehq/tamalebot/internal/storage"
)

// CredentialType classifies a stored credential.
type CredentialType string

const (
	TypeAPIKey       CredentialType = "api_key"
	TypeSSHKey       CredentialType = "ssh_key"
	TypeSSHPublicKey CredentialType = "ssh_public_key"
	TypeToken        CredentialType = "token"
	TypeDatabaseURL  CredentialType = "database_url"
	TypeGeneric      CredentialType = "generic"
)

const (
	keyPrefix      = "vault/"
	pbkdf2Iters    = 100_000
	keyLen         = 32
	ivLen          = 12
	tagLen         = 16
	maxValueLen    = 16384
	saltPrefix     = "tamalebot-vault-"
)

var (
	ErrInvalidName  = errors.New("vault: credential name must match [A-Z][A-Z0-9_]{1,63}")
	ErrValueTooLong = fmt.Errorf("vault: value exceeds %d bytes", maxValueLen)
	ErrEmptyValue   = errors.New("vault: value is empty")

	nameRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)
)

// Meta is the unencrypted metadata stored beside each credential.
type Meta struct {
	Type        CredentialType `json:"type"`
	Description string         `json:"description,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

// record is the on-storage JSON shape at vault/{NAME}.json.
type record struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	Tag       string `json:"tag"`
	Meta      Meta   `json:"meta"`
}

// Credential is a decrypted credential returned by Get.
type Credential struct {
	Value string
	Meta  Meta
}

// Item is a listing entry; metadata only, never plaintext.
type Item struct {
	Name string `json:"name"`
	Meta Meta   `json:"meta"`
}

// SetOptions carries metadata for Set.
type SetOptions struct {
	Type        CredentialType
	Description string
}

// Vault is the encrypted credential store for one agent.
type Vault struct {
	agentID string
	key     []byte
	store   storage.Backend
	journal *audit.Journal
}

// New derives the vault key from the source secret and agent ID via
// PBKDF2-HMAC-SHA256 (100k iterations, salt "tamalebot-vault-{agentID}").
// journal may be nil for library use without auditing.
func New(source, agentID string, store storage.Backend, journal *audit.Journal) *Vault {
	key := pbkdf2.Key([]byte(source), []byte(saltPrefix+agentID), pbkdf2Iters, keyLen, sha256.New)
	return &Vault{agentID: agentID, key: key, store: store, journal: journal}
}

func (v *Vault) storageKey(name string) string { return keyPrefix + name + ".json" }

func (v *Vault) log(action, target string, decision audit.Decision, reason string) {
	if v.journal == nil {
		return
	}
	if _, err := v.journal.Log(audit.Record{
		AgentID:    v.agentID,
		ActionType: action,
		Target:     target,
		Decision:   decision,
		Reason:     reason,
	}); err != nil {
		slog.Warn("vault: audit write failed", "action", action, "error", err)
	}
}

// Set validates, encrypts, and stores a credential.
func (v *Vault) Set(ctx context.Context, name, value string, opts SetOptions) error {
	if !nameRe.MatchString(name) {
		return ErrInvalidName
	}
	if value == "" {
		return ErrEmptyValue
	}
	if len(value) > maxValueLen {
		return ErrValueTooLong
	}
	ctype := opts.Type
	if ctype == "" {
		ctype = TypeGeneric
	}

	rec, err := v.encrypt(value, Meta{
		Type:        ctype,
		Description: opts.Description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("vault: marshal record: %w", err)
	}
	if err := v.store.Put(ctx, v.storageKey(name), data); err != nil {
		return fmt.Errorf("vault: store credential: %w", err)
	}
	v.log("vault_set", name, audit.DecisionAllowed, "")
	return nil
}

// Get decrypts and returns a credential. Returns (nil, nil) when the name is
// invalid, the credential is absent, or authentication of the ciphertext
// fails — each outcome is audited.
func (v *Vault) Get(ctx context.Context, name string) (*Credential, error) {
	if !nameRe.MatchString(name) {
		return nil, nil
	}
	data, err := v.store.Get(ctx, v.storageKey(name))
	if err != nil {
		return nil, fmt.Errorf("vault: load credential: %w", err)
	}
	if data == nil {
		v.log("vault_get", name, audit.DecisionAllowed, "not found")
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		v.log("vault_get", name, audit.DecisionBlocked, "corrupt record")
		return nil, nil
	}
	value, err := v.decrypt(&rec)
	if err != nil {
		v.log("vault_get", name, audit.DecisionBlocked, "decryption failed")
		return nil, nil
	}
	v.log("vault_get", name, audit.DecisionAllowed, "")
	return &Credential{Value: value, Meta: rec.Meta}, nil
}

// Delete removes a credential. Invalid names are a silent no-op.
func (v *Vault) Delete(ctx context.Context, name string) error {
	if !nameRe.MatchString(name) {
		return nil
	}
	if err := v.store.Delete(ctx, v.storageKey(name)); err != nil {
		return fmt.Errorf("vault: delete credential: %w", err)
	}
	v.log("vault_delete", name, audit.DecisionAllowed, "")
	return nil
}

// List enumerates stored credentials, metadata only. Corrupt entries are
// skipped silently.
func (v *Vault) List(ctx context.Context) ([]Item, error) {
	keys, err := v.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("vault: list credentials: %w", err)
	}
	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), ".json")
		data, err := v.store.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		items = append(items, Item{Name: name, Meta: rec.Meta})
	}
	v.log("vault_list", fmt.Sprintf("%d entries", len(items)), audit.DecisionAllowed, "")
	return items, nil
}

// Mask renders a credential value for display: the first four characters
// followed by between four and twenty mask characters. Plaintext never
// leaves through this path.
func Mask(value string) string {
	head := value
	if len(head) > 4 {
		head = head[:4]
	}
	stars := len(value) - 4
	if stars < 4 {
		stars = 4
	}
	if stars > 20 {
		stars = 20
	}
	return head + strings.Repeat("*", stars)
}

// --- encryption ---

func (v *Vault) encrypt(plaintext string, meta Meta) (*record, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("vault: generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]
	return &record{
		Encrypted: base64.StdEncoding.EncodeToString(ct),
		IV:        base64.StdEncoding.EncodeToString(iv),
		Tag:       base64.StdEncoding.EncodeToString(tag),
		Meta:      meta,
	}, nil
}

func (v *Vault) decrypt(rec *record) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(rec.Encrypted)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(rec.IV)
	if err != nil {
		return "", fmt.Errorf("vault: decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(rec.Tag)
	if err != nil {
		return "", fmt.Errorf("vault: decode tag: %w", err)
	}
	if len(iv) != ivLen || len(tag) != tagLen {
		return "", errors.New("vault: malformed record")
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}
	return string(plaintext), nil
}
