//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// ExecWithoutContext detects subprocess launches that ignore cancellation.
// Every external tool here (ffmpeg, ffprobe, fpcalc, olaf_c) runs under a
// request or lane deadline; a plain exec.Command keeps the child alive
// after the caller gave up.
//
// Old pattern:
//
//	cmd := exec.Command(d.ffmpegPath, args...)
//
// New pattern:
//
//	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
//
// See: https://pkg.go.dev/os/exec#CommandContext
func ExecWithoutContext(m dsl.Matcher) {
	m.Match(
		`exec.Command($*args)`,
	).
		Report("use exec.CommandContext so the child dies with the caller's deadline").
		Suggest("exec.CommandContext(ctx, $args)")
}

// ContextBackgroundInHandler detects context.Background() passed to
// downstream calls inside echo handlers, which detaches the work from the
// request lifetime. Use the request context so client disconnects cancel
// decodes and lane queries.
//
// Old pattern:
//
//	func (c *Controller) HandleSearch(ctx echo.Context) error {
//	    result, err := c.orchestrator.Search(context.Background(), ...)
//
// New pattern:
//
//	    result, err := c.orchestrator.Search(ctx.Request().Context(), ...)
//
// See: https://pkg.go.dev/net/http#Request.Context
func ContextBackgroundInHandler(m dsl.Matcher) {
	m.Match(
		`$recv.$method(context.Background(), $*args)`,
	).
		Where(m.File().Name.Matches(`^(search|ingest|tracks|health)\.go$`)).
		Report("handlers should pass ctx.Request().Context() so client disconnects cancel the work")
}
