package sshclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrAuthentication marks connect failures that retrying cannot fix
var ErrAuthentication = errors.New("authentication failed")

const (
	refKey      = "key"
	refEnv      = "env"
	refPassword = "password"
)

// CredentialResolver turns a credential reference into SSH auth methods.
// References never carry key material themselves, only where to find it:
//
//	key:<path>         private key file; relative paths resolve under Dir
//	env:<VAR>          password read from the environment
//	password:<secret>  literal password, for development only
//	<path>             same as key:<path>
type CredentialResolver struct {
	Dir    string
	Lookup func(string) (string, bool)
}

// Resolve returns the auth methods for ref
func (r CredentialResolver) Resolve(ref string) ([]ssh.AuthMethod, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: no credential reference configured", ErrAuthentication)
	}

	kind, value := refKey, ref
	if k, v, ok := strings.Cut(ref, ":"); ok {
		switch k {
		case refKey, refEnv, refPassword:
			kind, value = k, v
		}
	}

	switch kind {
	case refEnv:
		lookup := r.Lookup
		if lookup == nil {
			lookup = os.LookupEnv
		}
		secret, ok := lookup(value)
		if !ok || secret == "" {
			return nil, fmt.Errorf("%w: environment variable %s is not set", ErrAuthentication, value)
		}
		return []ssh.AuthMethod{ssh.Password(secret)}, nil
	case refPassword:
		if value == "" {
			return nil, fmt.Errorf("%w: empty password", ErrAuthentication)
		}
		return []ssh.AuthMethod{ssh.Password(value)}, nil
	default:
		signer, err := r.readKey(value)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
}

func (r CredentialResolver) readKey(p string) (ssh.Signer, error) {
	if p == "" {
		return nil, fmt.Errorf("%w: empty key path", ErrAuthentication)
	}
	if !filepath.IsAbs(p) && r.Dir != "" {
		p = filepath.Join(r.Dir, p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: reading private key: %v", ErrAuthentication, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: private key %s is passphrase protected", ErrAuthentication, filepath.Base(p))
		}
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrAuthentication, err)
	}
	return signer, nil
}
