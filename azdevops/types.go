package azdevops

// Wire types for the Azure DevOps git REST surface (api-version 7.1).
// Only the fields the tools project are declared; the service sends more.

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type gitRef struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

type refUpdate struct {
	Name        string `json:"name"`
	OldObjectID string `json:"oldObjectId,omitempty"`
	NewObjectID string `json:"newObjectId,omitempty"`
}

type refUpdateResult struct {
	Name         string `json:"name"`
	NewObjectID  string `json:"newObjectId"`
	Success      bool   `json:"success"`
	UpdateStatus string `json:"updateStatus"`
}

type itemContent struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type gitItem struct {
	ObjectID string `json:"objectId"`
	GitPath  string `json:"path"`
	Content  string `json:"content"`
}

type change struct {
	ChangeType string       `json:"changeType"`
	Item       changeItem   `json:"item"`
	NewContent *itemContent `json:"newContent,omitempty"`
}

type changeItem struct {
	Path string `json:"path"`
}

type commit struct {
	Comment string   `json:"comment"`
	Changes []change `json:"changes"`
}

type commitRef struct {
	CommitID string `json:"commitId"`
	Comment  string `json:"comment"`
}

type push struct {
	RefUpdates []refUpdate `json:"refUpdates"`
	Commits    []commit    `json:"commits"`
}

type pushResult struct {
	PushID     int               `json:"pushId"`
	Commits    []commitRef       `json:"commits"`
	RefUpdates []refUpdateResult `json:"refUpdates"`
}

// Repository is the projection of a hosted repository returned by the
// list_repositories tool.
type Repository struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	RemoteURL     string `json:"remoteUrl"`
	WebURL        string `json:"webUrl"`
	IsDisabled    bool   `json:"isDisabled"`
}

type identityRef struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// PullRequest is the projection returned by the list_pull_requests tool.
type PullRequest struct {
	PullRequestID int         `json:"pullRequestId"`
	Title         string      `json:"title"`
	Status        string      `json:"status"`
	CreatedBy     identityRef `json:"createdBy"`
	CreationDate  string      `json:"creationDate"`
	SourceRefName string      `json:"sourceRefName"`
	TargetRefName string      `json:"targetRefName"`
	IsDraft       bool        `json:"isDraft"`
}

// CommentThread is the projection returned by list_pull_request_comments.
type CommentThread struct {
	ID       int       `json:"id"`
	Status   string    `json:"status"`
	Comments []Comment `json:"comments"`
}

// Comment is a single comment inside a pull-request thread.
type Comment struct {
	ID          int         `json:"id"`
	Author      identityRef `json:"author"`
	Content     string      `json:"content"`
	PublishedAt string      `json:"publishedDate"`
	CommentType string      `json:"commentType"`
}

type apiError struct {
	Message string `json:"message"`
	TypeKey string `json:"typeKey"`
}
