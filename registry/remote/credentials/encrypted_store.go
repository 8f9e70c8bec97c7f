/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the AES-256 key from a passphrase. These
// match the OWASP-recommended minimums for interactive logins.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltSize      = 16
)

// ErrWrongPassphrase is returned by EncryptedFileStore.Get when the stored
// ciphertext fails to authenticate under the derived key, almost always
// because the wrong passphrase was supplied.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted credential store")

// sealedEntry is the on-disk representation of one encrypted credential.
type sealedEntry struct {
	Nonce  string `json:"nonce"`
	Sealed string `json:"sealed"`
}

// encryptedConfigFile is the on-disk JSON shape of an EncryptedFileStore: a
// random salt alongside the per-server sealed entries. The salt is not
// secret, it only needs to be unique per file.
type encryptedConfigFile struct {
	Salt  string                 `json:"salt"`
	Auths map[string]sealedEntry `json:"auths"`
}

// EncryptedFileStore is a Store that persists credentials under the same
// conceptual JSON shape as FileStore, but seals each entry's auth material
// with AES-256-GCM, keyed by argon2.IDKey(passphrase, salt, ...). Use it in
// place of FileStore when AllowPlaintextPut would otherwise be required
// (for example, no native credential helper is available on the host) but
// writing plaintext secrets to disk is not acceptable.
type EncryptedFileStore struct {
	path       string
	passphrase []byte

	rwLock sync.RWMutex
}

// NewEncryptedFileStore creates an EncryptedFileStore backed by the file at
// path, creating it (with a fresh random salt) on first write if it does
// not yet exist.
func NewEncryptedFileStore(path string, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return &EncryptedFileStore{
		path:       path,
		passphrase: []byte(passphrase),
	}, nil
}

// Get retrieves credentials from the store for the given server address.
func (es *EncryptedFileStore) Get(_ context.Context, serverAddress string) (Credential, error) {
	es.rwLock.RLock()
	defer es.rwLock.RUnlock()

	cfg, err := es.load()
	if err != nil {
		return EmptyCredential, err
	}
	entry, ok := cfg.Auths[serverAddress]
	if !ok {
		return EmptyCredential, nil
	}

	aead, err := es.aead(cfg.Salt)
	if err != nil {
		return EmptyCredential, err
	}
	nonce, err := base64.StdEncoding.DecodeString(entry.Nonce)
	if err != nil {
		return EmptyCredential, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(entry.Sealed)
	if err != nil {
		return EmptyCredential, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}
	plain, err := aead.Open(nil, nonce, sealed, []byte(serverAddress))
	if err != nil {
		return EmptyCredential, ErrWrongPassphrase
	}

	var ac authConfig
	if err := json.Unmarshal(plain, &ac); err != nil {
		return EmptyCredential, fmt.Errorf("%w: %v", ErrBadCredentialFormat, err)
	}
	return ac.Credential()
}

// Put saves credentials into the store for the given server address,
// sealing the secret fields under the store's passphrase-derived key.
func (es *EncryptedFileStore) Put(_ context.Context, serverAddress string, cred Credential) error {
	if err := validateCredentialFormat(cred); err != nil {
		return err
	}

	es.rwLock.Lock()
	defer es.rwLock.Unlock()

	cfg, err := es.load()
	if err != nil {
		return err
	}
	aead, err := es.aead(cfg.Salt)
	if err != nil {
		return err
	}

	plain, err := json.Marshal(NewAuthConfig(cred))
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nil, nonce, plain, []byte(serverAddress))

	if cfg.Auths == nil {
		cfg.Auths = make(map[string]sealedEntry)
	}
	cfg.Auths[serverAddress] = sealedEntry{
		Nonce:  base64.StdEncoding.EncodeToString(nonce),
		Sealed: base64.StdEncoding.EncodeToString(sealed),
	}
	return es.save(cfg)
}

// Delete removes the credential for the given server address.
func (es *EncryptedFileStore) Delete(_ context.Context, serverAddress string) error {
	es.rwLock.Lock()
	defer es.rwLock.Unlock()

	cfg, err := es.load()
	if err != nil {
		return err
	}
	delete(cfg.Auths, serverAddress)
	return es.save(cfg)
}

// load reads the encrypted config file, generating a fresh salt in memory
// if the file does not exist yet (the salt is only persisted on first Put).
func (es *EncryptedFileStore) load() (encryptedConfigFile, error) {
	data, err := os.ReadFile(es.path)
	if err != nil {
		if os.IsNotExist(err) {
			salt := make([]byte, saltSize)
			if _, err := rand.Read(salt); err != nil {
				return encryptedConfigFile{}, err
			}
			return encryptedConfigFile{
				Salt:  base64.StdEncoding.EncodeToString(salt),
				Auths: make(map[string]sealedEntry),
			}, nil
		}
		return encryptedConfigFile{}, err
	}

	var cfg encryptedConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return encryptedConfigFile{}, fmt.Errorf("%w: %v", ErrBadCredentialFormat, err)
	}
	if cfg.Auths == nil {
		cfg.Auths = make(map[string]sealedEntry)
	}
	return cfg, nil
}

// save writes cfg to the store's file path.
func (es *EncryptedFileStore) save(cfg encryptedConfigFile) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(es.path, data, 0600)
}

// aead derives the AES-256-GCM cipher keyed by the store's passphrase and
// the given base64-encoded salt.
func (es *EncryptedFileStore) aead(saltB64 string) (cipher.AEAD, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("invalid salt in encrypted credential store: %w", err)
	}
	key := argon2.IDKey(es.passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
