package domain

// NowPlayingSink publishes playback metadata to the host's now-playing
// surface and routes its media-remote commands back to a handler.
// Implementations are injected; the core never reaches for a process-wide
// singleton.
type NowPlayingSink interface {
	// Init publishes the static metadata for a newly loaded sequence.
	Init(info NowPlayingInfo)

	// Update re-publishes the drifting playback fields. Called on every
	// report tick while playing, and on rate changes.
	Update(update NowPlayingUpdate)

	SetState(state PlaybackState)

	// Activate registers the handler as the receiver of the host's
	// media-remote commands.
	Activate(handler RemoteHandler)

	Deactivate()
}

// RemoteHandler receives media-key commands routed from the host.
type RemoteHandler interface {
	RemotePlay()
	RemotePause()
	RemoteTogglePlayPause()
	RemoteStop()
}
