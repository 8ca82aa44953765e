package cluster

import (
	"math"
	"testing"

	"github.com/swedishdeveloper/digital-twin/core/geo"
)

func twoTowns() []geo.Position {
	return []geo.Position{
		{Lon: 16.09, Lat: 61.82},
		{Lon: 16.10, Lat: 61.83},
		{Lon: 16.11, Lat: 61.83},
		{Lon: 17.50, Lat: 62.50},
		{Lon: 17.51, Lat: 62.51},
		{Lon: 17.52, Lat: 62.49},
	}
}

func TestPartitionSeparatesTowns(t *testing.T) {
	points := twoTowns()
	assign, err := Partition(points, 2)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if len(assign) != len(points) {
		t.Fatalf("got %d assignments for %d points", len(assign), len(points))
	}
	// The first three points share a cluster, the last three the other.
	first, second := assign[0], assign[3]
	if first == second {
		t.Fatalf("towns not separated: %v", assign)
	}
	for i := 0; i < 3; i++ {
		if assign[i] != first {
			t.Errorf("point %d in cluster %d, want %d", i, assign[i], first)
		}
	}
	for i := 3; i < 6; i++ {
		if assign[i] != second {
			t.Errorf("point %d in cluster %d, want %d", i, assign[i], second)
		}
	}
}

func TestPartitionEveryClusterNonEmpty(t *testing.T) {
	// Tightly packed points tempt k-means into empty clusters.
	points := []geo.Position{
		{Lon: 16.0900, Lat: 61.8200},
		{Lon: 16.0901, Lat: 61.8201},
		{Lon: 16.0902, Lat: 61.8202},
		{Lon: 16.0903, Lat: 61.8203},
		{Lon: 16.0904, Lat: 61.8204},
	}
	k := 3
	assign, err := Partition(points, k)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	seen := make([]int, k)
	for _, c := range assign {
		if c < 0 || c >= k {
			t.Fatalf("cluster %d out of range", c)
		}
		seen[c]++
	}
	for c, n := range seen {
		if n == 0 {
			t.Errorf("cluster %d is empty: %v", c, assign)
		}
	}
}

func TestPartitionSingleCluster(t *testing.T) {
	assign, err := Partition(twoTowns(), 1)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	for i, c := range assign {
		if c != 0 {
			t.Errorf("point %d in cluster %d", i, c)
		}
	}
}

func TestPartitionRejectsInvalidCoordinates(t *testing.T) {
	cases := [][]geo.Position{
		{{Lon: 16.09, Lat: 61.82}, {}},
		{{Lon: math.NaN(), Lat: 61.82}},
		{{Lon: 200, Lat: 61.82}},
	}
	for _, points := range cases {
		if _, err := Partition(points, 1); err == nil {
			t.Errorf("expected error for %v", points)
		}
	}
}

func TestPartitionRejectsOversizedBatch(t *testing.T) {
	points := make([]geo.Position, MaxBatchSize+1)
	for i := range points {
		points[i] = geo.Position{Lon: 16.09, Lat: 61.82}
	}
	if _, err := Partition(points, 2); err == nil {
		t.Fatal("expected batch size error")
	}
}

func TestPartitionEmptyInput(t *testing.T) {
	assign, err := Partition(nil, 3)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if len(assign) != 0 {
		t.Fatalf("expected no assignments, got %v", assign)
	}
}
