package gen

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen.snowflake", fx.Provide(NewNode))

func NewNode() *snowflake.Node {
	node, err := snowflake.NewNode(1) // nodeID 1, override per deployment
	if err != nil {
		log.Fatal("failed to init snowflake node:", err)
	}
	return node
}
