// Package operation implements the tagged union of split-privilege
// operations — Add, Delete, Delegate, Invoke — each carrying an
// unprivileged client-side prepare step and a privileged broker-side
// execute step. It is grounded on the original daemon's BaseOp hierarchy
// and OperationRegistry dispatch (operation.py), generalized from a
// class-per-variant scheme into a single tagged struct with a
// discriminator, per the rewrite's "do NOT serialize executable code"
// requirement.
package operation

import (
	"fstokend/internal/acl"
	"fstokend/internal/catalog"
	"fstokend/internal/crypto"
	"fstokend/internal/filecipher"
	"fstokend/internal/identity"
	"fstokend/internal/kind"
	"fstokend/internal/token"
)

// Kind discriminates the four operation variants.
type Kind byte

const (
	Add Kind = iota
	Delete
	Delegate
	Invoke
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "Add"
	case Delete:
		return "Delete"
	case Delegate:
		return "Delegate"
	case Invoke:
		return "Invoke"
	default:
		return "Unknown"
	}
}

// Op is a single operation request, pre-resolved to an absolute path by
// the client dispatcher. All fields are meaningful only for the variants
// that use them; this mirrors the wire encoding, which carries the same
// fixed field set tagged by Kind rather than per-variant shapes.
type Op struct {
	Kind    Kind
	Path    string
	Encrypt bool
	Rotate  bool
	Grant   string
	Subject string
	Token   string

	// Prepared is set by the client after its unprivileged step (the ACL
	// grant/revoke) succeeds. The broker refuses to run Execute against
	// an Op with Prepared unset, with NotAllowed — a request built by
	// any path other than a successful Prepare is rejected rather than
	// trusted.
	Prepared bool
}

// SelectInput is the set of client-supplied flags the dispatcher chooses
// an operation Kind from.
type SelectInput struct {
	Delete  bool
	Encrypt bool
	Rotate  bool
	Grant   string
	Subject string
	Token   string
}

// Select picks the operation Kind from SelectInput, matching the
// original daemon's OperationRegistry.get_operation_by_args: delete wins
// ties, Delegate requires both grant and subject, Invoke requires a
// token not already claimed by Delegate, and Add is the default.
func Select(in SelectInput) Kind {
	if in.Delete {
		return Delete
	}
	if in.Grant != "" && in.Subject != "" {
		return Delegate
	}
	if in.Token != "" {
		return Invoke
	}
	return Add
}

// Result carries whichever of an operation's outputs apply to its Kind.
type Result struct {
	Kind        Kind
	FileKey     []byte      // Add
	Token       string      // Delegate
	Content     []byte      // Invoke
	Grant       token.Grant // Invoke
	HidePayload bool
}

// Prepare runs the unprivileged, client-side step: granting or revoking
// the broker's ACL on the target file. Add and Delegate grant access so
// the broker can read/write the file; Delete revokes first so the ACL is
// restored to its prior state even if the privileged step then fails;
// Invoke needs no ACL change since a prior Add already granted it.
func (o *Op) Prepare(collab acl.Collaborator) error {
	var err error
	switch o.Kind {
	case Add, Delegate:
		err = collab.Grant(o.Path)
	case Delete:
		err = collab.Revoke(o.Path)
	case Invoke:
		err = nil
	default:
		err = kind.New(kind.Unexpected, "unknown operation kind")
	}
	if err == nil {
		o.Prepared = true
	}
	return err
}

// Deps are the broker-side collaborators the privileged step needs.
type Deps struct {
	Catalog  *catalog.Catalog
	Identity *identity.Store
}

// Execute runs the privileged, broker-side step. It fails with NotAllowed
// unless Prepared is set, i.e. unless Prepare already ran and succeeded.
func (o *Op) Execute(deps *Deps) (Result, error) {
	if !o.Prepared {
		return Result{}, kind.New(kind.NotAllowed, "privileged step invoked without a successful prepare")
	}
	switch o.Kind {
	case Add:
		return executeAdd(deps, o)
	case Delete:
		return executeDelete(deps, o)
	case Delegate:
		return executeDelegate(deps, o)
	case Invoke:
		return executeInvoke(deps, o)
	default:
		return Result{}, kind.New(kind.Unexpected, "unknown operation kind")
	}
}

func executeAdd(deps *Deps, o *Op) (Result, error) {
	entry, exists, err := deps.Catalog.Lookup(o.Path)
	if err != nil {
		return Result{}, err
	}

	if exists && entry.Encrypted {
		if err := filecipher.DecryptInPlace(o.Path, entry.FileKey); err != nil {
			return Result{}, err
		}
	}

	if o.Rotate && exists {
		if _, err := deps.Catalog.Rotate(o.Path); err != nil {
			return Result{}, err
		}
	}

	key, err := deps.Catalog.AddOrGet(o.Path, o.Encrypt)
	if err != nil {
		return Result{}, err
	}

	if o.Encrypt {
		if err := filecipher.EncryptInPlace(o.Path, key); err != nil {
			return Result{}, err
		}
	}

	return Result{Kind: Add, FileKey: key, HidePayload: true}, nil
}

func executeDelete(deps *Deps, o *Op) (Result, error) {
	entry, exists, err := deps.Catalog.Lookup(o.Path)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, kind.New(kind.NotFound, "no catalog entry for "+o.Path)
	}

	if entry.Encrypted {
		if err := filecipher.DecryptInPlace(o.Path, entry.FileKey); err != nil {
			return Result{}, err
		}
	}

	if err := deps.Catalog.Delete(o.Path); err != nil {
		return Result{}, err
	}
	return Result{Kind: Delete}, nil
}

func executeDelegate(deps *Deps, o *Op) (Result, error) {
	addResult, err := executeAdd(deps, o)
	if err != nil {
		return Result{}, err
	}

	seed, _, err := deps.Identity.Load()
	if err != nil {
		return Result{}, err
	}
	seedMaterial := crypto.NewKeyMaterial(seed)
	defer seedMaterial.Close()

	var proof []string
	if o.Token != "" {
		proof = []string{o.Token}
	}

	tok, err := token.Encode(seedMaterial.Bytes(), token.RawPayload{
		FileKey: addResult.FileKey,
		Grant:   o.Grant,
		Subject: o.Subject,
		Proof:   proof,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Kind: Delegate, Token: tok, HidePayload: false}, nil
}

func executeInvoke(deps *Deps, o *Op) (Result, error) {
	entry, exists, err := deps.Catalog.Lookup(o.Path)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, kind.New(kind.NotFound, "no catalog entry for "+o.Path)
	}

	grant, err := token.Validate(o.Token, nil, entry.FileKey)
	if err != nil {
		return Result{}, err
	}

	var content []byte
	if entry.Encrypted {
		content, err = filecipher.DecryptToMemory(o.Path, entry.FileKey)
	} else {
		content, err = filecipher.ReadPlain(o.Path)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{Kind: Invoke, Content: content, Grant: grant, HidePayload: false}, nil
}

// InvokeFollowup completes an Invoke by writing back content the client
// edited, re-encrypting under the catalogued key if the entry is marked
// encrypted. It rewrites the file even when content is unchanged from
// what Invoke returned; the client skips the follow-up in that case, and
// calling it unconditionally is safe.
func InvokeFollowup(deps *Deps, path string, newContent []byte) error {
	entry, exists, err := deps.Catalog.Lookup(path)
	if err != nil {
		return err
	}
	if !exists {
		return kind.New(kind.NotFound, "no catalog entry for "+path)
	}

	if entry.Encrypted {
		sealed, err := crypto.SecretboxSeal(entry.FileKey, newContent)
		if err != nil {
			return kind.Wrap(kind.Unexpected, "sealing invoke followup content", err)
		}
		return filecipher.WritePlain(path, sealed)
	}
	return filecipher.WritePlain(path, newContent)
}
