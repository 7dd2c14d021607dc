package config

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/jdegges/arsenal/internal/tree"
)

func parseDoc(t *testing.T, body string) xmlDocument {
	t.Helper()
	var doc xmlDocument
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		t.Fatalf("xml.Unmarshal: %v", err)
	}
	return doc
}

func TestParseVolumeDefaultsPort(t *testing.T) {
	doc := parseDoc(t, `<arsenal>
		<volume>
			<name>v1</name>
			<root>/srv</root>
			<address>example.com</address>
			<username>bob</username>
			<public_key>/k.pub</public_key>
			<private_key>/k</private_key>
		</volume>
	</arsenal>`)

	roots := filterKnown(doc.Nodes)
	if len(roots) != 1 {
		t.Fatalf("len(roots) = %d, want 1", len(roots))
	}

	p, err := parseNode(roots[0])
	if err != nil {
		t.Fatalf("parseNode: %v", err)
	}
	if p.kind != tree.KindVolume {
		t.Fatalf("kind = %v, want KindVolume", p.kind)
	}
	if p.cfg.Port != defaultPort {
		t.Fatalf("Port = %q, want default %q", p.cfg.Port, defaultPort)
	}
	if p.cfg.Name != "v1" || p.cfg.Root != "/srv" {
		t.Fatalf("cfg = %+v, missing expected fields", p.cfg)
	}
}

func TestParseVolumeExplicitPort(t *testing.T) {
	doc := parseDoc(t, `<arsenal><volume><name>v1</name><port>2222</port></volume></arsenal>`)
	p, err := parseNode(filterKnown(doc.Nodes)[0])
	if err != nil {
		t.Fatal(err)
	}
	if p.cfg.Port != "2222" {
		t.Fatalf("Port = %q, want 2222", p.cfg.Port)
	}
}

func TestUnknownElementsIgnored(t *testing.T) {
	doc := parseDoc(t, `<arsenal>
		<mirror>
			<volume><name>a</name></volume>
			<bogus>ignored</bogus>
			<volume><name>b</name></volume>
		</mirror>
	</arsenal>`)

	p, err := parseNode(filterKnown(doc.Nodes)[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(p.children) != 2 {
		t.Fatalf("len(children) = %d, want 2 (unknown element should be ignored)", len(p.children))
	}
}

func TestEmptyAggregatorIsFatal(t *testing.T) {
	doc := parseDoc(t, `<arsenal><mirror></mirror></arsenal>`)
	p, err := parseNode(filterKnown(doc.Nodes)[0])
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := buildTree(p); err == nil {
		t.Fatal("buildTree with empty mirror: want error, got nil")
	}
}

func TestArsenalMustHaveExactlyOneChild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.xml")
	body := `<arsenal>
		<volume><name>a</name></volume>
		<volume><name>b</name></volume>
	</arsenal>`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load with two root children: want error, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.xml"); err == nil {
		t.Fatal("Load of missing file: want error, got nil")
	}
}

func TestBuildTreeAssignsMirrorAndDistributeKinds(t *testing.T) {
	doc := parseDoc(t, `<arsenal>
		<distribute>
			<mirror>
				<volume><name>a</name></volume>
				<volume><name>b</name></volume>
			</mirror>
			<volume><name>c</name></volume>
		</distribute>
	</arsenal>`)

	p, err := parseNode(filterKnown(doc.Nodes)[0])
	if err != nil {
		t.Fatal(err)
	}
	root, volumes, err := buildTree(p)
	if err != nil {
		t.Fatal(err)
	}
	if root.Kind != tree.KindDistribute {
		t.Fatalf("root.Kind = %v, want KindDistribute", root.Kind)
	}
	if len(volumes) != 3 {
		t.Fatalf("len(volumes) = %d, want 3", len(volumes))
	}
}
