package domain

// TransportObserver receives transport lifecycle events. All methods are
// invoked on the controller's event loop, one at a time, in the order the
// underlying transitions happened. The observer never owns the controller.
type TransportObserver interface {
	FilesLoaded()
	PlaybackWillStart(firstTime bool)
	PlaybackStarted(firstTime bool)
	PlaybackPositionChanged(position, duration float64)
	PlaybackStopped(paused bool)
	PlaybackEnded()
	PlaybackSpeedChanged(speed float64)
}

// BounceObserver receives render progress for one bounce job. All methods
// are invoked on the engine's event loop regardless of which internal
// goroutine produced them.
type BounceObserver interface {
	BounceProgress(percent, currentTime float64)
	BounceError(failure *Failure)
	BounceCompleted()
}

// TransportCallbacks adapts plain functions to TransportObserver.
// Nil fields are skipped.
type TransportCallbacks struct {
	OnFilesLoaded     func()
	OnWillStart       func(firstTime bool)
	OnStarted         func(firstTime bool)
	OnPositionChanged func(position, duration float64)
	OnStopped         func(paused bool)
	OnEnded           func()
	OnSpeedChanged    func(speed float64)
}

func (c *TransportCallbacks) FilesLoaded() {
	if c.OnFilesLoaded != nil {
		c.OnFilesLoaded()
	}
}

func (c *TransportCallbacks) PlaybackWillStart(firstTime bool) {
	if c.OnWillStart != nil {
		c.OnWillStart(firstTime)
	}
}

func (c *TransportCallbacks) PlaybackStarted(firstTime bool) {
	if c.OnStarted != nil {
		c.OnStarted(firstTime)
	}
}

func (c *TransportCallbacks) PlaybackPositionChanged(position, duration float64) {
	if c.OnPositionChanged != nil {
		c.OnPositionChanged(position, duration)
	}
}

func (c *TransportCallbacks) PlaybackStopped(paused bool) {
	if c.OnStopped != nil {
		c.OnStopped(paused)
	}
}

func (c *TransportCallbacks) PlaybackEnded() {
	if c.OnEnded != nil {
		c.OnEnded()
	}
}

func (c *TransportCallbacks) PlaybackSpeedChanged(speed float64) {
	if c.OnSpeedChanged != nil {
		c.OnSpeedChanged(speed)
	}
}

// BounceCallbacks adapts plain functions to BounceObserver.
// Nil fields are skipped.
type BounceCallbacks struct {
	OnProgress  func(percent, currentTime float64)
	OnError     func(failure *Failure)
	OnCompleted func()
}

func (c *BounceCallbacks) BounceProgress(percent, currentTime float64) {
	if c.OnProgress != nil {
		c.OnProgress(percent, currentTime)
	}
}

func (c *BounceCallbacks) BounceError(failure *Failure) {
	if c.OnError != nil {
		c.OnError(failure)
	}
}

func (c *BounceCallbacks) BounceCompleted() {
	if c.OnCompleted != nil {
		c.OnCompleted()
	}
}
