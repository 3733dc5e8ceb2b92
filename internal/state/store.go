package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	dbm "github.com/cosmos/cosmos-db"

	"stakecardgame/apps/chain/internal/vault"
)

const storeSchema = "scg/v1"

// Key layout. Game and vault records share the game id suffix so the two are
// addressed identically.
var (
	metaKey          = []byte{0x01}
	accountKeyPrefix = []byte{0x02}
	authKeyPrefix    = []byte{0x03}
	nonceKeyPrefix   = []byte{0x04}
	gameKeyPrefix    = []byte{0x05}
	vaultKeyPrefix   = []byte{0x06}
	paramsKey        = []byte{0x07}
)

func GameKey(id uint64) []byte {
	return idKey(gameKeyPrefix, id)
}

func VaultKey(id uint64) []byte {
	return idKey(vaultKeyPrefix, id)
}

func idKey(prefix []byte, id uint64) []byte {
	bz := make([]byte, len(prefix)+8)
	copy(bz, prefix)
	binary.BigEndian.PutUint64(bz[len(prefix):], id)
	return bz
}

func addrKey(prefix []byte, addr string) []byte {
	return append(append([]byte(nil), prefix...), []byte(addr)...)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type storeMeta struct {
	Schema string      `json:"schema"`
	Height int64       `json:"height"`
	Minted sdkmath.Int `json:"minted"`
}

// Store persists snapshots in a cosmos-db key/value database.
type Store struct {
	db dbm.DB
}

// OpenStore opens (or creates) the goleveldb database under dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir store dir: %w", err)
	}
	db, err := dbm.NewDB("state", dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &Store{db: db}, nil
}

func NewMemStore() *Store {
	return &Store{db: dbm.NewMemDB()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the whole snapshot in one batch. Either every record of the
// snapshot lands or none does.
func (s *Store) Save(snap *Snapshot) error {
	snap.normalize()
	batch := s.db.NewBatch()
	defer batch.Close()

	set := func(key []byte, v any) error {
		bz, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %x: %w", key, err)
		}
		return batch.Set(key, bz)
	}

	if err := set(metaKey, storeMeta{Schema: storeSchema, Height: snap.Height, Minted: snap.Minted}); err != nil {
		return err
	}
	if len(snap.Params) > 0 {
		if err := batch.Set(paramsKey, snap.Params); err != nil {
			return err
		}
	}
	// Accounts are rewritten from scratch so drained balances disappear.
	if err := s.deletePrefix(batch, accountKeyPrefix); err != nil {
		return err
	}
	for _, a := range snap.Accounts {
		if err := set(addrKey(accountKeyPrefix, a.Addr), a); err != nil {
			return err
		}
	}
	for _, k := range snap.AccountKeys {
		if err := set(addrKey(authKeyPrefix, k.Addr), k); err != nil {
			return err
		}
	}
	for _, n := range snap.NonceMax {
		if err := set(addrKey(nonceKeyPrefix, n.Signer), n); err != nil {
			return err
		}
	}
	for _, g := range snap.Games {
		if err := set(GameKey(g.ID), g); err != nil {
			return err
		}
	}
	for _, v := range snap.Vaults {
		if err := set(VaultKey(v.GameID), v); err != nil {
			return err
		}
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("write state batch: %w", err)
	}
	return nil
}

func (s *Store) deletePrefix(batch dbm.Batch, prefix []byte) error {
	it, err := s.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return err
	}
	defer it.Close()
	var keys [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the last saved snapshot. An empty database yields an empty
// snapshot at height 0.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{}
	bz, err := s.db.Get(metaKey)
	if err != nil {
		return nil, fmt.Errorf("read state meta: %w", err)
	}
	if bz == nil {
		snap.normalize()
		return snap, nil
	}
	var meta storeMeta
	if err := json.Unmarshal(bz, &meta); err != nil {
		return nil, fmt.Errorf("decode state meta: %w", err)
	}
	if meta.Schema != storeSchema {
		return nil, fmt.Errorf("unsupported state schema %q", meta.Schema)
	}
	snap.Height = meta.Height
	snap.Minted = meta.Minted
	params, err := s.db.Get(paramsKey)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	if len(params) > 0 {
		snap.Params = json.RawMessage(append([]byte(nil), params...))
	}

	if err := iterateJSON(s.db, accountKeyPrefix, func() any { return &AccountBalance{} }, func(v any) {
		snap.Accounts = append(snap.Accounts, *v.(*AccountBalance))
	}); err != nil {
		return nil, err
	}
	if err := iterateJSON(s.db, authKeyPrefix, func() any { return &AccountKey{} }, func(v any) {
		snap.AccountKeys = append(snap.AccountKeys, *v.(*AccountKey))
	}); err != nil {
		return nil, err
	}
	if err := iterateJSON(s.db, nonceKeyPrefix, func() any { return &AccountNonce{} }, func(v any) {
		snap.NonceMax = append(snap.NonceMax, *v.(*AccountNonce))
	}); err != nil {
		return nil, err
	}
	if err := iterateJSON(s.db, gameKeyPrefix, func() any { return &Game{} }, func(v any) {
		snap.Games = append(snap.Games, v.(*Game))
	}); err != nil {
		return nil, err
	}
	if err := iterateJSON(s.db, vaultKeyPrefix, func() any { return &vault.Vault{} }, func(v any) {
		snap.Vaults = append(snap.Vaults, *v.(*vault.Vault))
	}); err != nil {
		return nil, err
	}
	snap.normalize()
	return snap, nil
}

func iterateJSON(db dbm.DB, prefix []byte, newV func() any, cb func(v any)) error {
	it, err := db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		v := newV()
		if err := json.Unmarshal(it.Value(), v); err != nil {
			return fmt.Errorf("decode %x: %w", it.Key(), err)
		}
		cb(v)
	}
	return it.Error()
}
