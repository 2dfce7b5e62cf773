// Package application contém os casos de uso do controle de admissão:
//
//   - Service.Check: limiter de janela deslizante (cotas diárias por escopo)
//   - BurstService.Decide: burst guard por cliente (token bucket)
//   - ConcurrencyService.Acquire: vagas de trabalho em andamento
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
package application
