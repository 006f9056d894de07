package profile

import (
	"fmt"
	"math/rand"
)

// AliasGenerator はプロフィールの別名を生成するインターフェース。
// IdPから表示名が得られなかった場合のフォールバックに使用する。
type AliasGenerator interface {
	// Generate は新しい別名を生成する。
	Generate() string
}

var aliasAdjectives = []string{
	"Quick", "Lazy", "Mysterious", "Jolly", "Brave",
	"Silent", "Witty", "Fierce", "Clever", "Gentle",
	"Wild", "Calm", "Bold", "Shy", "Proud",
	"Happy", "Sad", "Eager", "Fancy", "Rusty",
	"Golden", "Silver", "Bright", "Dark", "Lucky",
}

var aliasNouns = []string{
	"Fox", "Bear", "Eagle", "Wolf", "Dragon",
	"Tiger", "Lion", "Owl", "Rabbit", "Falcon",
	"Hawk", "Shark", "Panda", "Kitten", "Puppy",
	"Phoenix", "Griffin", "Unicorn", "Turtle", "Dolphin",
	"Whale", "Elephant", "Giraffe", "Zebra",
}

// WordAliasGenerator は形容詞+動物名の組み合わせで別名を生成する。
type WordAliasGenerator struct{}

// NewWordAliasGenerator はWordAliasGeneratorを生成する。
func NewWordAliasGenerator() *WordAliasGenerator {
	return &WordAliasGenerator{}
}

// Generate は "Quick Fox" のような別名を生成する。
func (g *WordAliasGenerator) Generate() string {
	adjective := aliasAdjectives[rand.Intn(len(aliasAdjectives))]
	noun := aliasNouns[rand.Intn(len(aliasNouns))]
	return fmt.Sprintf("%s %s", adjective, noun)
}

// compile-time interface check
var _ AliasGenerator = (*WordAliasGenerator)(nil)
