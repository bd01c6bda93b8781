package editor

import (
	"errors"
	"time"

	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/files"
	"github.com/hazyhaar/diagrammer/panzoom"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/share"
)

// Share link notices.
const (
	MsgURLCopied     = "Share URL copied to clipboard!"
	MsgURLCopyFailed = "Failed to copy URL."
)

// maxNotices bounds the queue when nobody drains it.
const maxNotices = 32

// Notice is a transient message for the user.
type Notice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"notice"`
	At      time.Time `json:"at"`
}

// noticeKinds maps non-export failures to notices. Export failures fall
// through to export.Kind and export.Message.
var noticeKinds = []struct {
	err     error
	kind    string
	message string
}{
	{share.ErrURLDecodeFailed, "url_decode_failed", share.MsgURLDecodeFailed},
	{files.ErrFileSaveFailed, "file_save_failed", files.MsgFileSaveFailed},
	{files.ErrFileLoadFailed, "file_load_failed", files.MsgFileLoadFailed},
	{ErrUnknownSample, "unknown_sample", "Unknown sample."},
	{ErrNoController, "no_diagram", "No diagram to display."},
	{ErrInvalidSizes, "invalid_sizes", "Invalid pane sizes."},
	{panzoom.ErrZoomDisabled, "zoom_disabled", "Zoom is disabled."},
	{render.ErrNoEngine, "engine_unavailable", "No renderer is available for this diagram."},
	{ErrSuperseded, "superseded", "A newer edit replaced this render."},
}

const msgInternal = "Something went wrong. Please try again."

// NoticeFor turns a failure into the notice shown to the user.
func NoticeFor(err error) Notice {
	n := Notice{At: time.Now()}
	var se *render.SyntaxError
	if errors.As(err, &se) {
		n.Kind, n.Message = "syntax_error", se.Message
		return n
	}
	for _, k := range noticeKinds {
		if errors.Is(err, k.err) {
			n.Kind, n.Message = k.kind, k.message
			return n
		}
	}
	if export.IsExportError(err) {
		n.Kind, n.Message = export.Kind(err), export.Message(err)
		return n
	}
	n.Kind, n.Message = "internal", msgInternal
	return n
}

func (w *Workspace) notify(n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, n)
	if len(w.notices) > maxNotices {
		w.notices = w.notices[len(w.notices)-maxNotices:]
	}
}

// Notices drains the notices raised outside a request, such as a share
// link that failed to decode at startup.
func (w *Workspace) Notices() []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.notices
	w.notices = nil
	return out
}
