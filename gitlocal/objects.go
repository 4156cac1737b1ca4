package gitlocal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/switchgate/switchgate/scm"
)

// applyChanges validates each change against the base tree and returns the
// hash of the rewritten root tree. Add requires the path to be absent, Edit
// requires it to exist; the distinction keeps a retried create from
// silently clobbering a file that already landed.
func (r *Repo) applyChanges(base *object.Tree, changes []scm.Change) (plumbing.Hash, error) {
	if len(changes) == 0 {
		return plumbing.ZeroHash, scm.E(scm.KindInvalidRequest, "gitlocal.Push", "commit has no changes")
	}
	tree := base
	for _, ch := range changes {
		path := strings.TrimPrefix(ch.Path, "/")
		exists := false
		if tree != nil {
			if _, err := tree.FindEntry(path); err == nil {
				exists = true
			}
		}
		switch ch.Kind {
		case scm.ChangeAdd:
			if exists {
				return plumbing.ZeroHash, scm.E(scm.KindInvalidRequest, "gitlocal.Push",
					fmt.Sprintf("add: path %q already exists", path), "path", path)
			}
		case scm.ChangeEdit:
			if !exists {
				return plumbing.ZeroHash, scm.E(scm.KindNotFound, "gitlocal.Push",
					fmt.Sprintf("edit: path %q does not exist", path), "path", path)
			}
		default:
			return plumbing.ZeroHash, scm.E(scm.KindInvalidRequest, "gitlocal.Push",
				fmt.Sprintf("unsupported change kind %q", ch.Kind))
		}

		blobHash, err := r.writeBlob(ch.Content)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		treeHash, err := r.upsertEntry(tree, strings.Split(path, "/"), blobHash)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		tree, err = object.GetTree(r.repo.Storer, treeHash)
		if err != nil {
			return plumbing.ZeroHash, scm.E(scm.KindRemoteUnavailable, "gitlocal.Push", "reload tree").Wrap(err)
		}
	}
	return tree.Hash, nil
}

func (r *Repo) writeBlob(content []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("blob writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob: %w", err)
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// upsertEntry rewrites the tree chain along the path segments, replacing or
// inserting the leaf blob, and returns the new root tree hash.
func (r *Repo) upsertEntry(tree *object.Tree, parts []string, blob plumbing.Hash) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	if tree != nil {
		entries = append(entries, tree.Entries...)
	}

	name := parts[0]
	idx := -1
	for i, e := range entries {
		if e.Name == name {
			idx = i
			break
		}
	}

	var entry object.TreeEntry
	if len(parts) == 1 {
		entry = object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blob}
	} else {
		var sub *object.Tree
		if idx >= 0 && entries[idx].Mode == filemode.Dir {
			var err error
			sub, err = object.GetTree(r.repo.Storer, entries[idx].Hash)
			if err != nil && !errors.Is(err, plumbing.ErrObjectNotFound) {
				return plumbing.ZeroHash, fmt.Errorf("load subtree %q: %w", name, err)
			}
		}
		subHash, err := r.upsertEntry(sub, parts[1:], blob)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entry = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: subHash}
	}

	if idx >= 0 {
		entries[idx] = entry
	} else {
		entries = append(entries, entry)
	}
	sortTreeEntries(entries)

	t := &object.Tree{Entries: entries}
	obj := r.repo.Storer.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// sortTreeEntries orders entries the way git expects: byte order, with
// directory names compared as if suffixed by "/".
func sortTreeEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i]) < key(entries[j])
	})
}

func (r *Repo) writeCommit(tree plumbing.Hash, parents []plumbing.Hash, message string) (plumbing.Hash, error) {
	sig := object.Signature{
		Name:  r.authorName,
		Email: r.authorEmail,
		When:  time.Now(),
	}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	return r.repo.Storer.SetEncodedObject(obj)
}
