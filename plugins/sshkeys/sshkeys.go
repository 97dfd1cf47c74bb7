// Package sshkeys gives the nodes a fresh SSH identity for every run,
// which the first node uses to shut the others down.
package sshkeys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"

	"go.universe.tf/vlab"
)

// Key is the node file key that enables the plugin. Setting it on any
// node installs the keys on all nodes, since they all share the files.
const Key = "sshkeys"

const (
	privateKeyPath     = "/root/.ssh/id_ed25519"
	publicKeyPath      = "/root/.ssh/id_ed25519.pub"
	authorizedKeysPath = "/root/.ssh/authorized_keys"
)

// Plugin installs an ephemeral ed25519 key pair as root's identity and
// authorized key on every node.
type Plugin struct {
	vlab.BasePlugin

	enabled     bool
	fingerprint string
	files       map[string][]byte
}

// New is a vlab.PluginFactory.
func New(vlabDir string, args *vlab.Arguments) (vlab.Plugin, error) {
	return &Plugin{BasePlugin: vlab.BasePlugin{VlabDir: vlabDir, Args: args}}, nil
}

func (*Plugin) Name() string { return "sshkeys" }

func (*Plugin) ParseNode(_ *vlab.Node, raw map[string]interface{}) (vlab.NodeExtension, error) {
	v, ok := raw[Key]
	if !ok {
		return nil, nil
	}
	enable, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("%s must be a boolean", Key)
	}
	if !enable {
		return nil, nil
	}
	return &vlab.BaseNodeExtension{}, nil
}

// Validate generates the run's key pair if any node asked for it.
// The plugin doesn't change after this.
func (p *Plugin) Validate(exts []vlab.NodeExtension) error {
	p.enabled = len(exts) > 0
	if !p.enabled {
		return nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return fmt.Errorf("converting public key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "vlab")
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	p.fingerprint = ssh.FingerprintSHA256(sshPub)

	authorized := ssh.MarshalAuthorizedKey(sshPub)
	p.files = map[string][]byte{
		privateKeyPath:     pem.EncodeToMemory(block),
		publicKeyPath:      authorized,
		authorizedKeysPath: authorized,
	}
	return nil
}

// EarlyStart tightens the private key's mode, which ssh insists on.
func (p *Plugin) EarlyStart(*vlab.RuntimeData) string {
	if !p.enabled {
		return ""
	}
	return fmt.Sprintf("chmod 600 %s 2>/dev/null || true", privateKeyPath)
}

func (p *Plugin) Files(*vlab.RuntimeData) (map[string][]byte, error) {
	return p.files, nil
}

// Fingerprint returns the SHA256 fingerprint of the key generated for
// the current run, or "" if no node uses the plugin.
func (p *Plugin) Fingerprint() string {
	return p.fingerprint
}
