package ids

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64 // 0~1023
	seq      int64 // 0~4095
	lastTSMS int64
}

var (
	defaultGen *generator
	once       sync.Once
)

func initDefault() {
	once.Do(func() {
		defaultGen = &generator{
			epochMS: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			nodeID:  1,
		}
	})
}

// Generate returns the next snowflake id of this node.
func Generate() int64 {
	initDefault()
	return defaultGen.next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID 设置 nodeID（0~1023），可在 main() 初始化时调用
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.mu.Lock()
	defaultGen.nodeID = nodeID
	defaultGen.mu.Unlock()
}

// NodeIDFromString hashes a textual node name into the 10-bit snowflake node range.
func NodeIDFromString(name string) int64 {
	var h int64
	for _, c := range name {
		h = (h*31 + int64(c)) & 0x3FF
	}
	return h
}

const syntheticPrefix = "anon-"

// Synthetic mints an identity for a connection that presented no credential.
func Synthetic() string {
	return syntheticPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}

func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, syntheticPrefix)
}

func (g *generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastTSMS {
			// clock moved backwards, wait it out
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & 0xFFF // 12 bits
			if g.seq == 0 {
				for now <= g.lastTSMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - g.epochMS) & ((1 << 41) - 1)
		id := (ts << 22) | (g.nodeID << 12) | g.seq
		return id
	}
}
