// Package infra contém as implementações concretas dos contratos de domain.
//
//   - Store: token bucket por caller usando golang.org/x/time/rate, com shards e janitor
//   - ChanPool: semáforo para limitar requisições em andamento
//   - MemoryStatsStore / RedisStatsStore / PromStatsStore: destinos das decisões
package infra
