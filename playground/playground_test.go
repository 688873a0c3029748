package playground

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
)

type reqspy struct {
	// got is every request the round tripper received.
	got []*http.Request
	// bodies holds the body of each request.
	bodies []string
	// respond maps request URLs to response bodies.
	// URLs not present get a 404.
	respond map[string]string
}

func (r *reqspy) RoundTrip(req *http.Request) (*http.Response, error) {
	r.got = append(r.got, req)
	var b []byte
	if req.Body != nil {
		b, _ = io.ReadAll(req.Body)
	}
	r.bodies = append(r.bodies, string(b))
	s, ok := r.respond[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: 404, Status: "404 Not Found", Body: io.NopCloser(strings.NewReader("not found"))}, nil
	}
	return &http.Response{StatusCode: 200, Status: "200 OK", Body: io.NopCloser(strings.NewReader(s))}, nil
}

func spyClient(respond map[string]string) (*Client, *reqspy) {
	spy := &reqspy{respond: respond}
	return &Client{HTTP: &http.Client{Transport: spy}, Agent: "playbot-test"}, spy
}

func TestExecute(t *testing.T) {
	cl, spy := spyClient(map[string]string{
		"https://play.rust-lang.org/execute": `{"stdout":"2\n","stderr":"Compiling playground","success":true}`,
	})
	req := NewRequest("fn main() { println!(\"{}\", 1+1); }")
	req.Channel = Nightly
	got, err := cl.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("couldn't execute: %v", err)
	}
	want := Response{Stdout: "2\n", Stderr: "Compiling playground", Success: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong response (+got/-want):\n%s", diff)
	}
	if spy.got[0].Method != "POST" {
		t.Errorf("wrong method %q", spy.got[0].Method)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(spy.bodies[0]), &body); err != nil {
		t.Fatalf("couldn't decode request body %q: %v", spy.bodies[0], err)
	}
	wantBody := map[string]any{
		"channel":   "nightly",
		"mode":      "debug",
		"edition":   "2018",
		"crateType": "bin",
		"tests":     false,
		"backtrace": false,
		"code":      "fn main() { println!(\"{}\", 1+1); }",
	}
	if diff := cmp.Diff(wantBody, body); diff != "" {
		t.Errorf("wrong request body (+got/-want):\n%s", diff)
	}
}

func TestExecuteFailure(t *testing.T) {
	cl, _ := spyClient(nil)
	if _, err := cl.Execute(context.Background(), NewRequest("")); err == nil {
		t.Error("no error from failed request")
	}
}

// brokenBody fails every read and remembers whether it was closed.
type brokenBody struct {
	closed bool
}

func (b *brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (b *brokenBody) Close() error              { b.closed = true; return nil }

type brokenTransport struct {
	body *brokenBody
}

func (r brokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: 200, Status: "200 OK", Body: r.body}, nil
}

func TestExecuteReadFailure(t *testing.T) {
	body := new(brokenBody)
	cl := &Client{HTTP: &http.Client{Transport: brokenTransport{body}}, Agent: "playbot-test"}
	if _, err := cl.Execute(context.Background(), NewRequest("")); err == nil {
		t.Error("no error from unreadable response")
	}
	if !body.closed {
		t.Error("response body left open")
	}
}

func TestPaste(t *testing.T) {
	cl, spy := spyClient(map[string]string{
		"https://play.rust-lang.org/meta/gist/": `{"id":"abc123","url":"https://gist.github.com/abc123"}`,
	})
	got, err := cl.Paste(context.Background(), "fn main() {}", Beta, Release)
	if err != nil {
		t.Fatalf("couldn't paste: %v", err)
	}
	want := "https://play.rust-lang.org/?gist=abc123&version=beta&mode=release"
	if got != want {
		t.Errorf("wrong url: want %q, got %q", want, got)
	}
	if spy.bodies[0] != `{"code":"fn main() {}"}` {
		t.Errorf("wrong request body %q", spy.bodies[0])
	}
}

func TestVersion(t *testing.T) {
	cl, _ := spyClient(map[string]string{
		"https://play.rust-lang.org/meta/version/stable": `{"date":"2024-09-04","hash":"eeb90cda1969383f56a2637cbd3037bdf598841c","version":"1.81.0"}`,
	})
	got, err := cl.Version(context.Background(), Stable)
	if err != nil {
		t.Fatalf("couldn't get version: %v", err)
	}
	want := Version{Version: "1.81.0", Hash: "eeb90cda1969383f56a2637cbd3037bdf598841c", Date: "2024-09-04"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong version (+got/-want):\n%s", diff)
	}
}

func TestIsGistURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://gist.github.com/rust-play/0123abcd", true},
		{"gist.github.com/0123abcd/", true},
		{"http://gist.github.com/someone/0123abcd", true},
		{"https://gist.githubusercontent.com/someone/0123abcd/raw", true},
		{"https://gist.githubusercontent.com/someone/0123abcd/raw/deadbeef/main.rs", true},
		{"https://gist.github.com/someone/xyz", false},
		{"https://github.com/someone/0123abcd", false},
		{"1 + 1", false},
		{"https://gist.github.com/someone/0123abcd extra", false},
	}
	for _, c := range cases {
		if got := IsGistURL(c.url); got != c.want {
			t.Errorf("IsGistURL(%q): want %t, got %t", c.url, c.want, got)
		}
	}
}

func TestFetchGist(t *testing.T) {
	cl, spy := spyClient(map[string]string{
		"https://api.github.com/gists/0123abcd": `{"files":{
			"README.md":{"filename":"README.md","content":"hi"},
			"b.rs":{"filename":"b.rs","content":"fn b() {}"},
			"a.rs":{"filename":"a.rs","content":"fn main() {}"}
		}}`,
		"https://gist.githubusercontent.com/someone/0123abcd/raw/main.rs": "fn raw() {}",
		"https://api.github.com/gists/ffff": `{"files":{"README.md":{"filename":"README.md","content":"hi"}}}`,
	})
	cases := []struct {
		name string
		url  string
		want string
		err  bool
	}{
		{"gist", "https://gist.github.com/someone/0123abcd", "fn main() {}", false},
		{"gist-no-scheme", "gist.github.com/0123abcd", "fn main() {}", false},
		{"raw", "https://gist.githubusercontent.com/someone/0123abcd/raw/main.rs", "fn raw() {}", false},
		{"raw-no-scheme", "gist.githubusercontent.com/someone/0123abcd/raw/main.rs", "fn raw() {}", false},
		{"no-rust", "https://gist.github.com/ffff", "", true},
		{"missing", "https://gist.github.com/eeee", "", true},
		{"not-gist", "https://example.com/", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := cl.FetchGist(context.Background(), c.url)
			if (err != nil) != c.err {
				t.Errorf("wrong error: want error %t, got %v", c.err, err)
			}
			if got != c.want {
				t.Errorf("wrong code: want %q, got %q", c.want, got)
			}
		})
	}
	if len(spy.got) == 0 {
		t.Error("no requests")
	}
}

func TestWrap(t *testing.T) {
	t.Run("bare", func(t *testing.T) {
		code := "#![feature(never_type)] fn main() {}"
		if got := Wrap(Bare, code); got != code {
			t.Errorf("bare template changed code: %q", got)
		}
	})
	t.Run("expr", func(t *testing.T) {
		got := Wrap(Expr, "1 + 1")
		if !strings.Contains(got, "fn main()") || !strings.Contains(got, "        1 + 1\n") {
			t.Errorf("expression not wrapped:\n%s", got)
		}
	})
	t.Run("hoist", func(t *testing.T) {
		got := Wrap(Expr, "#![feature(box_syntax)] #![allow(unused)] box 1")
		attrs := strings.Index(got, "#![feature(box_syntax)] #![allow(unused)]")
		main := strings.Index(got, "fn main()")
		if attrs < 0 || main < 0 || attrs > main {
			t.Errorf("attributes not hoisted:\n%s", got)
		}
		if !strings.Contains(got, "        box 1\n") {
			t.Errorf("code missing after attributes:\n%s", got)
		}
	})
	t.Run("allocs", func(t *testing.T) {
		got := Wrap(AllocStats, "vec![1, 2, 3]")
		if !strings.Contains(got, "__STAT_ALLOC.print_stats();") || !strings.Contains(got, "vec![1, 2, 3]") {
			t.Errorf("alloc stats template not used:\n%s", got)
		}
		if strings.Contains(got, "{{") {
			t.Errorf("template left doubled braces:\n%s", got)
		}
	})
}

func TestBareCrateType(t *testing.T) {
	cases := []struct {
		name string
		code string
		want CrateType
	}{
		{"main", "fn main() {}", Bin},
		{"pub-main", "pub fn main() {}", Bin},
		{"async-main", "#[tokio::main]\nasync fn main() {}", Bin},
		{"indented", "mod x {}\n  fn main ( ) {}", Bin},
		{"lib", "pub fn f() {}", Lib},
		{"not-main", "fn mainly() {}", Lib},
		{"attr-lib", "#![crate_type = \"lib\"]\nfn main() {}", Lib},
		{"attr-bin", "#![crate_type = \"bin\"]\nfn f() {}", Bin},
		{"attr-other", "#![crate_type = \"cdylib\"]\nfn f() {}", Lib},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := BareCrateType(c.code); got != c.want {
				t.Errorf("wrong crate type: want %q, got %q", c.want, got)
			}
		})
	}
}

func TestPasteText(t *testing.T) {
	got := PasteText("fn main() {}", "out", "err")
	for _, s := range []string{"fn main() {}", "~~~ stdout", "out", "~~~ stderr", "err"} {
		if !strings.Contains(got, s) {
			t.Errorf("paste text missing %q:\n%s", s, got)
		}
	}
}
