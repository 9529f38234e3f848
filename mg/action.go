package mg

import (
	"github.com/ugorji/go/codec"
	"golang.org/x/xerrors"
	"path/filepath"
)

var (
	actionCreators = map[string]actionCreator{
		"ViewModified":   decodeAction[ViewModified],
		"ViewActivated":  decodeAction[ViewActivated],
		"ViewLoaded":     decodeAction[ViewActivated],
		"ViewPosChanged": decodeAction[ViewPosChanged],
		"GotoNext":       decodeAction[GotoNext],
		"GotoPrev":       decodeAction[GotoPrev],
		"SetConfig":      decodeAction[SetConfig],
		"Shutdown": func(codec.Handle, agentReqAction) (Action, error) {
			return Shutdown{}, nil
		},
	}
)

type actionCreator func(codec.Handle, agentReqAction) (Action, error)

// decodeAction decodes the data of a request action into an A.
// Actions without data decode to the zero value.
func decodeAction[A Action](h codec.Handle, a agentReqAction) (Action, error) {
	var act A
	if len(a.Data) == 0 {
		return act, nil
	}
	err := codec.NewDecoderBytes(a.Data, h).Decode(&act)
	return act, err
}

// Action is a request from the editor
type Action interface {
	apply(ag *Agent) error
}

func checkPath(fn string) error {
	if !filepath.IsAbs(fn) {
		return xerrors.Errorf("path `%s` is not absolute", fn)
	}
	return nil
}

// ViewModified reports the new content of a source
type ViewModified struct {
	Path string
	Src  string
}

func (a ViewModified) apply(ag *Agent) error {
	if err := checkPath(a.Path); err != nil {
		return err
	}
	ag.Flymake.Modified(a.Path, a.Src)
	return nil
}

// ViewActivated reports that a source was focused or loaded.
// Src is the content of the view, used to look up cached diagnostics.
type ViewActivated struct {
	Path string
	Src  string
}

func (a ViewActivated) apply(ag *Agent) error {
	if err := checkPath(a.Path); err != nil {
		return err
	}
	ag.Flymake.Activated(a.Path, a.Src)
	return nil
}

// ViewPosChanged reports the zero-based row of the last selection of a source
type ViewPosChanged struct {
	Path string
	Row  int
}

func (a ViewPosChanged) apply(ag *Agent) error {
	if err := checkPath(a.Path); err != nil {
		return err
	}
	ag.Flymake.Selection(a.Path, a.Row)
	return nil
}

type GotoNext struct {
	Path string
	Row  int
}

func (a GotoNext) apply(ag *Agent) error {
	if err := checkPath(a.Path); err != nil {
		return err
	}
	ag.Flymake.Next(a.Path, a.Row)
	return nil
}

type GotoPrev struct {
	Path string
	Row  int
}

func (a GotoPrev) apply(ag *Agent) error {
	if err := checkPath(a.Path); err != nil {
		return err
	}
	ag.Flymake.Prev(a.Path, a.Row)
	return nil
}

// SetConfig applies editor settings over the agent's base config.
// See Config.Override for the accepted keys.
type SetConfig struct {
	Values map[string]string
}

func (a SetConfig) apply(ag *Agent) error {
	cfg, err := ag.base.Override(a.Values)
	if err != nil {
		return err
	}
	ag.Flymake.Reconfigure(cfg)
	ag.editor.emit("Config", ConfigEvent{ExcludePattern: cfg.ExcludePattern()})
	return nil
}

// Shutdown stops the agent after the reply to its request was sent
type Shutdown struct{}

func (Shutdown) apply(ag *Agent) error {
	ag.shutdown = true
	return nil
}
