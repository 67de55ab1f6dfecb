// Package rules é o motor declarativo de roteamento: uma tabela
// (destino, operação) -> condição avaliada contra o snapshot do contato.
//
// O motor é puro. Pares ausentes excluem o destino e condições desconhecidas
// avaliam como false (fail-closed), nunca como erro.
package rules
