package state

import (
	"sort"
)

// Registry holds per-account auth material: the registered ed25519 key and
// the last accepted tx nonce (replay protection). It is owned by the ABCI app
// and guarded by the app's lock.
type Registry struct {
	Keys     map[string][]byte
	NonceMax map[string]uint64
}

func NewRegistry() *Registry {
	return &Registry{Keys: map[string][]byte{}, NonceMax: map[string]uint64{}}
}

type AccountKey struct {
	Addr   string `json:"addr"`
	PubKey []byte `json:"pubKey"`
}

type AccountNonce struct {
	Signer string `json:"signer"`
	Nonce  uint64 `json:"nonce"`
}

func (r *Registry) sortedKeys() []AccountKey {
	out := make([]AccountKey, 0, len(r.Keys))
	for k, v := range r.Keys {
		out = append(out, AccountKey{Addr: k, PubKey: append([]byte(nil), v...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func (r *Registry) sortedNonces() []AccountNonce {
	out := make([]AccountNonce, 0, len(r.NonceMax))
	for k, v := range r.NonceMax {
		out = append(out, AccountNonce{Signer: k, Nonce: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signer < out[j].Signer })
	return out
}

func (r *Registry) restore(keys []AccountKey, nonces []AccountNonce) {
	r.Keys = make(map[string][]byte, len(keys))
	for _, k := range keys {
		r.Keys[k.Addr] = append([]byte(nil), k.PubKey...)
	}
	r.NonceMax = make(map[string]uint64, len(nonces))
	for _, n := range nonces {
		r.NonceMax[n.Signer] = n.Nonce
	}
}
