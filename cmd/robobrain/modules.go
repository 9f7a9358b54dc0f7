package main

// Compiled modules. Each registers itself with the core registry from init.
import (
	_ "github.com/flemzord/robobrain/internal/bridge"
	_ "github.com/flemzord/robobrain/internal/gateway"
	_ "github.com/flemzord/robobrain/internal/mcpserver"
	_ "github.com/flemzord/robobrain/modules/memory/milvus"
	_ "github.com/flemzord/robobrain/modules/memory/sqlite"
	_ "github.com/flemzord/robobrain/modules/provider/anthropic"
	_ "github.com/flemzord/robobrain/modules/provider/ollama"
	_ "github.com/flemzord/robobrain/modules/provider/openai_compatible"
)
