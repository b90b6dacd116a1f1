package env

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Load reads KEY=VALUE files into the process environment. Variables set
// before the call win over file values, later files override earlier ones and
// missing files are skipped. It returns the keys it set.
func Load(paths ...string) ([]string, error) {
	pre := map[string]struct{}{}
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i > 0 {
			pre[e[:i]] = struct{}{}
		}
	}
	var applied []string
	seen := map[string]bool{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return applied, err
		}
		vars, err := Parse(f)
		f.Close()
		if err != nil {
			return applied, fmt.Errorf("%s: %w", p, err)
		}
		for _, kv := range vars {
			if _, ok := pre[kv[0]]; ok {
				continue
			}
			if err := os.Setenv(kv[0], kv[1]); err != nil {
				return applied, err
			}
			if !seen[kv[0]] {
				seen[kv[0]] = true
				applied = append(applied, kv[0])
			}
		}
	}
	return applied, nil
}

// Parse returns the key/value pairs of a dotenv stream in file order.
func Parse(r io.Reader) ([][2]string, error) {
	var out [][2]string
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", n)
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		quoted := len(v) >= 2 && ((v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\''))
		if quoted {
			v = v[1 : len(v)-1]
		} else if j := strings.Index(v, " #"); j >= 0 {
			v = strings.TrimSpace(v[:j])
		}
		out = append(out, [2]string{k, v})
	}
	return out, sc.Err()
}
