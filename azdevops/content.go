package azdevops

import (
	"context"
	"fmt"
	"net/url"

	"github.com/switchgate/switchgate/scm"
)

// itemFetcher retrieves file content through the items API at a commit.
// This is the primary retrieval path.
type itemFetcher struct {
	c *Client
}

func (f *itemFetcher) Name() string { return "items-api" }

func (f *itemFetcher) Fetch(ctx context.Context, repositoryID, commitID, path string) ([]byte, error) {
	q := url.Values{}
	q.Set("path", ensureLeadingSlash(path))
	q.Set("versionDescriptor.versionType", "commit")
	q.Set("versionDescriptor.version", commitID)
	q.Set("includeContent", "true")
	q.Set("$format", "json")

	var item gitItem
	if err := f.c.get(ctx, f.c.repoURL(repositoryID, "items", q), &item); err != nil {
		return nil, err
	}
	if item.Content == "" {
		return nil, scm.E(scm.KindNotFound, "azdevops.itemFetcher",
			fmt.Sprintf("item %q has no inline content at %s", path, commitID),
			"repository", repositoryID, "path", path)
	}
	return []byte(item.Content), nil
}

// blobFetcher resolves the item's blob object id and reads the blob
// directly. It is the fallback path: the raw object store stays consistent
// even when the items API lags behind a fresh push.
type blobFetcher struct {
	c *Client
}

func (f *blobFetcher) Name() string { return "blobs-api" }

func (f *blobFetcher) Fetch(ctx context.Context, repositoryID, commitID, path string) ([]byte, error) {
	q := url.Values{}
	q.Set("path", ensureLeadingSlash(path))
	q.Set("versionDescriptor.versionType", "commit")
	q.Set("versionDescriptor.version", commitID)

	var item gitItem
	if err := f.c.get(ctx, f.c.repoURL(repositoryID, "items", q), &item); err != nil {
		return nil, err
	}
	if item.ObjectID == "" {
		return nil, scm.E(scm.KindNotFound, "azdevops.blobFetcher",
			fmt.Sprintf("no blob object id for %q at %s", path, commitID),
			"repository", repositoryID, "path", path)
	}

	bq := url.Values{}
	bq.Set("$format", "text")
	bq.Set("api-version", apiVersion)
	u := fmt.Sprintf("%s/_apis/git/repositories/%s/blobs/%s?%s",
		f.c.baseURL, url.PathEscape(repositoryID), url.PathEscape(item.ObjectID), bq.Encode())
	return f.c.rawGet(ctx, u)
}
