package media

import (
	"fmt"
	"strings"
	"testing"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		videoDur float64
		audioDur float64
		want     reconcileMode
	}{
		{"exact match", 10.0, 10.0, combineDirect},
		{"within tolerance short", 9.6, 10.0, combineDirect},
		{"within tolerance long", 10.4, 10.0, combineDirect},
		{"video much shorter", 5.0, 12.0, loopVideo},
		{"video just past tolerance short", 9.4, 10.0, loopVideo},
		{"video much longer", 20.0, 8.0, trimVideo},
		{"video just past tolerance long", 10.6, 10.0, trimVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcile(tt.videoDur, tt.audioDur)
			if got != tt.want {
				t.Errorf("reconcile(%.1f, %.1f) = %s, want %s",
					tt.videoDur, tt.audioDur, got, tt.want)
			}
		})
	}
}

// In every mode the output length must be the audio length, so each argument
// list must pin -t to the audio duration.
func TestBuildCombineArgsAudioDurationAuthority(t *testing.T) {
	const audioDur = 12.345

	for _, mode := range []reconcileMode{combineDirect, loopVideo, trimVideo} {
		t.Run(mode.String(), func(t *testing.T) {
			args := buildCombineArgs(mode, "v.mp4", "a.wav", "out.mp4", audioDur)

			found := false
			for i, a := range args {
				if a == "-t" && i+1 < len(args) {
					if args[i+1] != fmt.Sprintf("%.3f", audioDur) {
						t.Errorf("mode %s: -t %s, want %.3f", mode, args[i+1], audioDur)
					}
					found = true
				}
			}
			if !found {
				t.Errorf("mode %s: no -t flag in args %v", mode, args)
			}
		})
	}
}

func TestBuildCombineArgsModes(t *testing.T) {
	direct := strings.Join(buildCombineArgs(combineDirect, "v.mp4", "a.wav", "out.mp4", 10), " ")
	if !strings.Contains(direct, "-c:v copy") {
		t.Errorf("direct mode should stream-copy video, got: %s", direct)
	}
	if strings.Contains(direct, "afade") {
		t.Errorf("direct mode should not fade, got: %s", direct)
	}

	loop := strings.Join(buildCombineArgs(loopVideo, "v.mp4", "a.wav", "out.mp4", 10), " ")
	if !strings.Contains(loop, "-stream_loop -1") {
		t.Errorf("loop mode should loop the video input, got: %s", loop)
	}
	if !strings.Contains(loop, "afade") {
		t.Errorf("loop mode should fade the audio out, got: %s", loop)
	}

	trim := strings.Join(buildCombineArgs(trimVideo, "v.mp4", "a.wav", "out.mp4", 10), " ")
	if !strings.Contains(trim, "fade") {
		t.Errorf("trim mode should fade both tracks, got: %s", trim)
	}
}

func TestConcatList(t *testing.T) {
	got := concatList([]string{"/tmp/a.mp4", "/tmp/part one/b.mp4"})
	want := "file '/tmp/a.mp4'\nfile '/tmp/part one/b.mp4'\n"
	if got != want {
		t.Errorf("concatList = %q, want %q", got, want)
	}

	escaped := concatList([]string{"/tmp/it's.mp4"})
	if !strings.Contains(escaped, `'\''`) {
		t.Errorf("single quotes should be escaped, got %q", escaped)
	}
}
