// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: janela deslizante atômica (script Lua) + KV das sessões
//   - MemoryCounterStore: o mesmo contrato em memória, para testes e STORE=memory
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - RedisStatsStore / MemoryStatsStore: contadores de decisões por escopo
package infra
