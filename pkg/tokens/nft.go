package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
	"github.com/SVOIcom/everscale-connect-backend/pkg/contract"
)

// indexABI covers the getter of the TIP-4.3 Index contracts deployed per
// owner and NFT.
const indexABI = `{
	"ABI version": 2,
	"version": "2.2",
	"header": ["time"],
	"functions": [
		{"name": "getInfo", "inputs": [{"name": "answerId", "type": "uint32"}], "outputs": [
			{"name": "collection", "type": "address"},
			{"name": "owner", "type": "address"},
			{"name": "nft", "type": "address"}
		]}
	],
	"events": []
}`

const indexLookups = 8

// Collection is a TIP-4 NFT collection exposing the 4.1, 4.2 and 4.3
// interfaces.
type Collection struct {
	loader   Loader
	opts     options
	address  address.Address
	base     *contract.Contract
	indexing *contract.Contract
	metadata *contract.Contract
}

func NewCollection(ctx context.Context, l Loader, addr address.Address, opts ...Option) (*Collection, error) {
	o := newOptions(opts)
	col := &Collection{loader: l, opts: o, address: addr}
	for _, b := range []struct {
		name string
		dst  **contract.Contract
	}{
		{ABICollection, &col.base},
		{ABICollectionIndexing, &col.indexing},
		{ABICollectionMetadata, &col.metadata},
	} {
		c, err := o.load(ctx, l, b.name, addr)
		if err != nil {
			return nil, err
		}
		*b.dst = c
	}
	return col, nil
}

func (c *Collection) Address() address.Address {
	return c.address
}

// Metadata decodes the collection's TIP-4.2 JSON document.
func (c *Collection) Metadata(ctx context.Context) (map[string]any, error) {
	out, err := call(ctx, c.metadata, "getJson", answering(nil))
	if err != nil {
		return nil, err
	}
	raw, err := stringField(out, "json")
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode collection metadata: %w", err)
	}
	return doc, nil
}

func (c *Collection) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := call(ctx, c.base, "totalSupply", answering(nil))
	if err != nil {
		return nil, err
	}
	return intField(out, "count")
}

func (c *Collection) NftAddress(ctx context.Context, id *big.Int) (address.Address, error) {
	out, err := call(ctx, c.base, "nftAddress", answering(map[string]any{"id": id.String()}))
	if err != nil {
		return address.Address{}, err
	}
	return addressField(out, "nft")
}

func (c *Collection) NftCodeHash(ctx context.Context) (string, error) {
	out, err := call(ctx, c.base, "nftCodeHash", answering(nil))
	if err != nil {
		return "", err
	}
	return hashField(out, "codeHash")
}

func (c *Collection) IndexCodeHash(ctx context.Context) (string, error) {
	out, err := call(ctx, c.indexing, "indexCodeHash", answering(nil))
	if err != nil {
		return "", err
	}
	return hashField(out, "hash")
}

// Nft binds the token with the given id.
func (c *Collection) Nft(ctx context.Context, id *big.Int) (*Nft, error) {
	addr, err := c.NftAddress(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewNft(ctx, c.loader, addr, c.withOpts()...)
}

// OwnerNfts lists the NFTs of this collection held by owner. Every holding
// has a TIP-4.3 index account whose code hash depends only on the collection
// and the owner; the index helper computes that hash and the provider finds
// the accounts. Results follow the order the provider returns the indexes in.
func (c *Collection) OwnerNfts(ctx context.Context, owner address.Address) ([]address.Address, error) {
	finder, ok := c.loader.(AccountFinder)
	if !ok {
		return nil, ErrNoAccountSearch
	}
	helper, err := NewIndexHelper(ctx, c.loader, c.opts.indexHelper, c.withOpts()...)
	if err != nil {
		return nil, err
	}
	hash, err := helper.ResolveCodeHash(ctx, c.address, owner)
	if err != nil {
		return nil, err
	}
	indexes, err := finder.FindAccountsByCodeHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("find index accounts: %w", err)
	}

	nfts := make([]address.Address, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexLookups)
	for i, idx := range indexes {
		g.Go(func() error {
			ic, err := c.loader.LoadContract(gctx, indexABI, idx)
			if err != nil {
				return fmt.Errorf("load index %s: %w", idx, err)
			}
			out, err := call(gctx, ic, "getInfo", answering(nil))
			if err != nil {
				return fmt.Errorf("index %s: %w", idx, err)
			}
			nfts[i], err = addressField(out, "nft")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nfts, nil
}

func (c *Collection) withOpts() []Option {
	return []Option{func(o *options) { *o = c.opts }}
}

type NftInfo struct {
	ID         *big.Int
	Owner      address.Address
	Manager    address.Address
	Collection address.Address
}

// Nft is a TIP-4.1 token.
type Nft struct {
	contract *contract.Contract
}

func NewNft(ctx context.Context, l Loader, addr address.Address, opts ...Option) (*Nft, error) {
	c, err := newOptions(opts).load(ctx, l, ABINft, addr)
	if err != nil {
		return nil, err
	}
	return &Nft{contract: c}, nil
}

func (n *Nft) Address() address.Address {
	return n.contract.Address()
}

func (n *Nft) Info(ctx context.Context) (*NftInfo, error) {
	out, err := call(ctx, n.contract, "getInfo", answering(nil))
	if err != nil {
		return nil, err
	}
	info := &NftInfo{}
	if info.ID, err = intField(out, "id"); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key string
		dst *address.Address
	}{
		{"owner", &info.Owner},
		{"manager", &info.Manager},
		{"collection", &info.Collection},
	} {
		if *f.dst, err = addressField(out, f.key); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// IndexHelper computes TIP-4.3 index code hashes on chain.
type IndexHelper struct {
	contract *contract.Contract
}

func NewIndexHelper(ctx context.Context, l Loader, addr address.Address, opts ...Option) (*IndexHelper, error) {
	c, err := newOptions(opts).load(ctx, l, ABIIndexHelper, addr)
	if err != nil {
		return nil, err
	}
	return &IndexHelper{contract: c}, nil
}

// ResolveCodeHash returns the code hash of the index accounts linking owner
// to NFTs of collection, as 64 hex digits.
func (h *IndexHelper) ResolveCodeHash(ctx context.Context, collection, owner address.Address) (string, error) {
	out, err := call(ctx, h.contract, "resolveCodeHashNftIndex", map[string]any{
		"collection": collection,
		"owner":      owner,
	})
	if err != nil {
		return "", err
	}
	return hashField(out, "value0")
}
