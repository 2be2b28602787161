package timeline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/keagan/cutforge/internal/effects"
	"github.com/keagan/cutforge/internal/filtergraph"
	"github.com/keagan/cutforge/pkg/util"
)

// Options controls where the compiled command writes.
type Options struct {
	Output string
	// TempDir receives the caption file; defaults to the output's directory.
	TempDir string
	Style   SubtitleStyle
}

// Command is a compiled ffmpeg invocation.
type Command struct {
	Inputs        []string
	FilterComplex string
	Maps          []string
	OutputArgs    []string
	Output        string
	// TempFiles are created by Compile and must be removed by the caller.
	TempFiles []string
	// ExpectedDuration is the length of the rendered output.
	ExpectedDuration time.Duration
}

// Empty reports whether the command renders nothing.
func (c *Command) Empty() bool {
	return c.FilterComplex == ""
}

// Args renders the full argument list, excluding the ffmpeg binary.
func (c *Command) Args() []string {
	args := []string{"-y"}
	for _, in := range c.Inputs {
		args = append(args, "-i", in)
	}
	if c.FilterComplex != "" {
		args = append(args, "-filter_complex", c.FilterComplex)
	}
	for _, m := range c.Maps {
		args = append(args, "-map", m)
	}
	args = append(args, c.OutputArgs...)
	return append(args, c.Output)
}

// Cleanup removes temporary files created during compilation.
func (c *Command) Cleanup() {
	util.CleanupFiles(c.TempFiles...)
}

type compiler struct {
	graph  *filtergraph.Graph
	out    OutputSpec
	inputs []string

	video    []filtergraph.Stream
	audio    []filtergraph.Stream
	stickers []Clip

	videoSeconds float64
	audioSeconds float64
}

// Compile translates a timeline into one ffmpeg command. Video clips are
// concatenated in track order, stickers are overlaid on the result and
// captions are burned in last.
func Compile(tl *Timeline, out OutputSpec, subs Subtitles, opts Options) (*Command, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("%w: output path is required", ErrInvalidTimeline)
	}
	if err := tl.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{graph: filtergraph.New(), out: out.WithDefaults()}
	cmd := &Command{
		Output:     opts.Output,
		OutputArgs: outputArgs(c.out),
	}

	for _, track := range tl.Tracks {
		for _, clip := range track.Clips {
			switch track.Kind {
			case TrackVideo:
				c.addVideoClip(clip)
			case TrackAudio:
				c.addAudioClip(clip)
			case TrackSticker:
				c.stickers = append(c.stickers, clip)
			}
		}
	}

	if len(c.video) == 0 && len(c.audio) == 0 {
		cmd.Inputs = c.inputs
		return cmd, nil
	}

	var videoOut filtergraph.Stream
	if len(c.video) > 0 {
		videoOut = c.graph.Named(c.video, "outv", filtergraph.Video,
			fmt.Sprintf("concat=n=%d:v=1:a=0", len(c.video)))
		videoOut = c.overlayStickers(videoOut)

		if len(subs.Segments) > 0 {
			dir := opts.TempDir
			if dir == "" {
				dir = filepath.Dir(opts.Output)
			}
			captions := filepath.Join(dir, "captions_"+uuid.NewString()+".srt")
			if err := WriteSRTFile(captions, subs.Segments, subs.Bilingual); err != nil {
				return nil, err
			}
			cmd.TempFiles = append(cmd.TempFiles, captions)
			videoOut = c.graph.Named([]filtergraph.Stream{videoOut}, "outsv", filtergraph.Video,
				fmt.Sprintf("subtitles=filename='%s':force_style='%s'",
					filtergraph.EscapePath(captions), opts.Style.forceStyle()))
		}
		cmd.Maps = append(cmd.Maps, videoOut.String())
	}

	switch len(c.audio) {
	case 0:
	case 1:
		a := c.graph.Named(c.audio, "outa", filtergraph.Audio, "anull")
		cmd.Maps = append(cmd.Maps, a.String())
	default:
		a := c.graph.Named(c.audio, "outa", filtergraph.Audio,
			fmt.Sprintf("concat=n=%d:v=0:a=1", len(c.audio)))
		cmd.Maps = append(cmd.Maps, a.String())
	}

	if err := c.graph.Err(); err != nil {
		cmd.Cleanup()
		return nil, fmt.Errorf("failed to build filter graph: %w", err)
	}

	cmd.Inputs = c.inputs
	cmd.FilterComplex = c.graph.String()
	seconds := c.videoSeconds
	if len(c.video) == 0 {
		seconds = c.audioSeconds
	}
	cmd.ExpectedDuration = util.Seconds(seconds)
	return cmd, nil
}

func (c *compiler) addInput(path string) int {
	c.inputs = append(c.inputs, path)
	return len(c.inputs) - 1
}

func (c *compiler) addVideoClip(clip Clip) {
	idx := c.addInput(clip.Source)
	start, end := clip.TrimWindow()

	chain := filtergraph.NewChain().
		Trim(start, end).
		Custom(effects.VideoRetime(clip.Speed)).
		Custom(effects.BuildFilters(clip.Effects)...).
		FitCanvas(c.out.Width, c.out.Height)
	c.video = append(c.video, c.graph.Chain(c.graph.Input(idx, filtergraph.Video), "v", chain.BuildAll()...))
	c.videoSeconds += clip.Duration()

	if !clip.NoAudio {
		c.audio = append(c.audio, c.audioChain(idx, clip))
	}
}

func (c *compiler) addAudioClip(clip Clip) {
	idx := c.addInput(clip.Source)
	c.audio = append(c.audio, c.audioChain(idx, clip))
	c.audioSeconds += clip.Duration()
}

func (c *compiler) audioChain(idx int, clip Clip) filtergraph.Stream {
	start, end := clip.TrimWindow()
	chain := filtergraph.NewChain().
		ATrim(start, end).
		ASetPTS().
		Custom(effects.RateChain(clip.Speed)...).
		AFadeIn(float64(clip.FadeInMs) / 1000).
		AFadeOut(float64(clip.FadeOutMs)/1000, clip.Duration())
	return c.graph.Chain(c.graph.Input(idx, filtergraph.Audio), "a", chain.BuildAll()...)
}

// overlayStickers appends sticker inputs after every clip input and chains
// one overlay per sticker onto base.
func (c *compiler) overlayStickers(base filtergraph.Stream) filtergraph.Stream {
	cur := base
	for _, clip := range c.stickers {
		o := clip.Overlay()
		in := c.graph.Input(c.addInput(clip.Source), filtergraph.Video)
		if f := o.ScaleFilter(); f != "" {
			in = c.graph.Chain(in, "stk_s", f)
		}
		cur = c.graph.Node([]filtergraph.Stream{cur, in}, "stk", filtergraph.Video, o.OverlayFilter())
	}
	return cur
}

func outputArgs(o OutputSpec) []string {
	return []string{
		"-c:v", o.Codec,
		"-preset", o.Preset,
		"-crf", strconv.Itoa(o.CRF),
		"-c:a", o.AudioCodec,
		"-b:a", o.AudioBitrate,
		"-r", strconv.FormatFloat(o.FPS, 'f', -1, 64),
		"-movflags", "+faststart",
	}
}
