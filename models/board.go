package models

import "math"

// Board size grows with the lobby: duels stay tight, bigger groups
// get room to maneuver.
var boardSizeByPlayers = map[int]int{
	2: 20,
	4: 30,
	6: 40,
	8: 40,
}

const (
	spawnMargin      = 2
	initBodyLength   = 3
	DefaultTickMS    = 150
	DefaultFoodCount = 3
)

var spawnColors = []string{
	"#4CAF50", "#2196F3", "#F44336", "#FFC107",
	"#9C27B0", "#00BCD4", "#FF9800", "#E91E63",
}

// SpawnPosition is a derived (never persisted) placement computed at
// session-creation time: where a snake starts, which way it faces and
// which color it gets.
type SpawnPosition struct {
	Head      Position
	Body      PositionList
	Direction string
	Color     string
}

// BoardSizeFor returns the board edge length for a given player count.
// Unknown counts fall back to the largest board.
func BoardSizeFor(playerCount int) int {
	if size, ok := boardSizeByPlayers[playerCount]; ok {
		return size
	}
	return 40
}

// SpawnPositions places playerCount snakes evenly around the board
// perimeter, each facing the center. The placement is deterministic:
// the same inputs always produce the same spawns.
func SpawnPositions(playerCount int) []SpawnPosition {
	size := BoardSizeFor(playerCount)
	center := float64(size-1) / 2
	radius := center - spawnMargin

	spawns := make([]SpawnPosition, playerCount)
	for i := 0; i < playerCount; i++ {
		angle := 2 * math.Pi * float64(i) / float64(playerCount)
		dx := math.Cos(angle)
		dy := math.Sin(angle)

		// Project onto the square boundary at the given radius.
		scale := radius / math.Max(math.Abs(dx), math.Abs(dy))
		head := Position{
			X: clampCoord(int(math.Round(center+dx*scale)), size),
			Y: clampCoord(int(math.Round(center+dy*scale)), size),
		}

		dir := facingCenter(dx, dy)
		spawns[i] = SpawnPosition{
			Head:      head,
			Body:      trailBody(head, dir, size),
			Direction: dir,
			Color:     spawnColors[i%len(spawnColors)],
		}
	}
	return spawns
}

// facingCenter picks the dominant axis pointing back toward the board
// center from a perimeter spawn.
func facingCenter(dx, dy float64) string {
	if math.Abs(dx) >= math.Abs(dy) {
		if dx > 0 {
			return "left"
		}
		return "right"
	}
	if dy > 0 {
		return "up"
	}
	return "down"
}

// trailBody lays the initial body segments behind the head, opposite
// the facing direction.
func trailBody(head Position, direction string, size int) PositionList {
	stepX, stepY := 0, 0
	switch direction {
	case "up":
		stepY = 1
	case "down":
		stepY = -1
	case "left":
		stepX = 1
	case "right":
		stepX = -1
	}

	body := make(PositionList, 0, initBodyLength)
	for i := 0; i < initBodyLength; i++ {
		body = append(body, Position{
			X: clampCoord(head.X+stepX*i, size),
			Y: clampCoord(head.Y+stepY*i, size),
		})
	}
	return body
}

func clampCoord(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}
