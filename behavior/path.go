package behavior

import "math/rand/v2"

// point is a 2D page coordinate.
type point struct {
	x float64
	y float64
}

// bezierPath computes a cubic-bezier curve from start to end with two
// randomized control points, sampled at the given number of steps. Real
// pointer movement arcs rather than travelling in a straight line.
func bezierPath(rng *rand.Rand, start, end point, steps int) []point {
	if steps < 2 {
		steps = 2
	}

	c1 := point{
		x: start.x + (end.x-start.x)*rng.Float64(),
		y: start.y + (end.y-start.y)*rng.Float64(),
	}
	c2 := point{
		x: start.x + (end.x-start.x)*rng.Float64(),
		y: start.y + (end.y-start.y)*rng.Float64(),
	}

	path := make([]point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		path = append(path, cubicBezier(start, c1, c2, end, t))
	}
	return path
}

// cubicBezier evaluates the curve at parameter t in [0,1].
func cubicBezier(p0, p1, p2, p3 point, t float64) point {
	u := 1 - t
	b0 := u * u * u
	b1 := 3 * u * u * t
	b2 := 3 * u * t * t
	b3 := t * t * t
	return point{
		x: b0*p0.x + b1*p1.x + b2*p2.x + b3*p3.x,
		y: b0*p0.y + b1*p1.y + b2*p2.y + b3*p3.y,
	}
}

// adjacentKeys maps each letter to its QWERTY neighbours, used to pick
// a plausible wrong character for typo simulation.
var adjacentKeys = map[rune]string{
	'a': "qws", 'b': "vgn", 'c': "xdv", 'd': "serf", 'e': "wrd",
	'f': "drtg", 'g': "ftyh", 'h': "gyuj", 'i': "uok", 'j': "huik",
	'k': "jilm", 'l': "kop", 'm': "njk", 'n': "bhm", 'o': "ipl",
	'p': "ol", 'q': "wa", 'r': "etf", 's': "awdz", 't': "ryg",
	'u': "yij", 'v': "cfb", 'w': "qes", 'x': "zsc", 'y': "tuh",
	'z': "asx",
}

// adjacentKey returns a QWERTY neighbour of c, or c itself when it has
// no mapped neighbours.
func adjacentKey(rng *rand.Rand, c rune) rune {
	neighbours, ok := adjacentKeys[c]
	if !ok || len(neighbours) == 0 {
		return c
	}
	return rune(neighbours[rng.IntN(len(neighbours))])
}
