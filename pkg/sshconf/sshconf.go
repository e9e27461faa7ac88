// Package sshconf provisions the shared fleet SSH identity: one ed25519
// keypair plus a client ssh config covering every host, written once per
// run to the output directory.
//
// generated config entry format:
//
//	Host <address>
//	  HostName <address>
//	  User <user>
//	  Port <port>
//	  IdentityFile <outputDir>/id_ed25519
package sshconf

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"

	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
)

const (
	PrivateKeyName = "id_ed25519"
	PublicKeyName  = "id_ed25519.pub"
	ConfigName     = "config"
)

const hostConfigTemplate = `Host {{ .Alias }}
  HostName {{ .Hostname }}
  User {{ .User }}
  Port {{ .Port }}
  IdentityFile {{ .IdentityFile }}
  StrictHostKeyChecking no
  UserKnownHostsFile /dev/null

`

type hostConfig struct {
	Alias        string
	Hostname     string
	User         string
	Port         int
	IdentityFile string
}

type CredentialStore interface {
	FileExists(path string) (bool, error)
	ReadString(path string) (string, error)
	WriteStringWithMode(path, data string, mode os.FileMode) error
	EnsureWritableDir(path string) error
}

type Provisioner struct {
	store CredentialStore
}

func NewProvisioner(store CredentialStore) Provisioner {
	return Provisioner{store: store}
}

// Provision generates (or reuses) the fleet keypair and rewrites the client
// ssh config for the given hosts. Key generation is idempotent: an existing
// private key is never overwritten, so repeated runs against the same fleet
// keep the established trust.
func (p Provisioner) Provision(outputDir string, hosts []entity.Host) (entity.Credentials, error) {
	err := p.store.EnsureWritableDir(outputDir)
	if err != nil {
		return entity.Credentials{}, sberrors.WrapAndTrace(err, "output directory is not writable")
	}

	creds := entity.Credentials{
		PrivateKeyPath: filepath.Join(outputDir, PrivateKeyName),
		PublicKeyPath:  filepath.Join(outputDir, PublicKeyName),
		SSHConfigPath:  filepath.Join(outputDir, ConfigName),
	}

	err = p.ensureKeypair(creds)
	if err != nil {
		return entity.Credentials{}, sberrors.WrapAndTrace(err)
	}

	err = p.writeConfig(creds, hosts)
	if err != nil {
		return entity.Credentials{}, sberrors.WrapAndTrace(err)
	}
	return creds, nil
}

func (p Provisioner) ensureKeypair(creds entity.Credentials) error {
	keyExists, err := p.store.FileExists(creds.PrivateKeyPath)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	if keyExists {
		return nil
	}

	privatePEM, publicAuthorized, err := generateKeypair()
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	err = p.store.WriteStringWithMode(creds.PrivateKeyPath, privatePEM, 0o400)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	err = p.store.WriteStringWithMode(creds.PublicKeyPath, publicAuthorized, 0o644)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}

func generateKeypair() (string, string, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", sberrors.WrapAndTrace(err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "sbfleet")
	if err != nil {
		return "", "", sberrors.WrapAndTrace(err)
	}
	privatePEM := string(pem.EncodeToMemory(pemBlock))

	sshPublicKey, err := ssh.NewPublicKey(publicKey)
	if err != nil {
		return "", "", sberrors.WrapAndTrace(err)
	}
	publicAuthorized := string(ssh.MarshalAuthorizedKey(sshPublicKey))

	return privatePEM, publicAuthorized, nil
}

func (p Provisioner) writeConfig(creds entity.Credentials, hosts []entity.Host) error {
	tmpl, err := template.New("sshconfig").Parse(hostConfigTemplate)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}

	buf := new(strings.Builder)
	for _, host := range hosts {
		entry := hostConfig{
			Alias:        host.Address,
			Hostname:     host.Address,
			User:         host.SSHUser(),
			Port:         host.SSHPort(),
			IdentityFile: creds.PrivateKeyPath,
		}
		err = tmpl.Execute(buf, entry)
		if err != nil {
			return sberrors.WrapAndTrace(err)
		}
	}

	rendered := buf.String()
	_, err = ssh_config.Decode(bytes.NewBufferString(rendered))
	if err != nil {
		return sberrors.WrapAndTrace(err, "generated ssh config does not parse")
	}

	err = p.store.WriteStringWithMode(creds.SSHConfigPath, rendered, 0o644)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}
