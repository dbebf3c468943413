package orchestrator

// Event is a progress notification emitted by a Session operation.
type Event struct {
	Phase string // refreshing|scanning|installing|uploading|done
	ID    string // site name for refreshing events; empty otherwise
	Msg   string
}

// Hooks carries the callback a caller (typically the CLI) supplies to
// observe a Session operation's progress.
type Hooks struct {
	OnEvent func(Event)
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// RefreshOptions controls Session.Refresh.
type RefreshOptions struct {
	UpdateAll bool // not read by Refresh, which fetches every active site regardless
	Simulate  bool
}

// UpdateOptions controls Session.Update.
type UpdateOptions struct {
	Simulate      bool
	Force         bool // not read by Update; forced staging comes from Plan(..., force=true)
	RemoveObsolete bool // update-force-pristine: also stage REMOVE for every obsolete file
}

// UploadOptions controls Session.Upload.
type UploadOptions struct {
	Simulate                  bool
	ForceShadow               bool
	ForgetMissingDependencies bool
}
