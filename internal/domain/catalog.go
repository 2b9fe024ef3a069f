package domain

// DefaultCatalog is the fixed set of card image identifiers the game ships
// with. Boards and decks are drawn from this set unless the server config
// overrides it.
var DefaultCatalog = []string{
	"Cero.png",
	"El alebrije.png",
	"El igual.png",
	"El mayor que.png",
	"El menor que.png",
	"El numero al cuadrado.png",
	"El numero al cubo.png",
	"El parentesis.png",
	"El pi.png",
	"El porcentaje.png",
	"I.png",
	"La division.png",
	"La jerarquia de operaciones.png",
	"La multiplicacion de signos distintos.png",
	"La multiplicacion de signos iguales.png",
	"La Multiplicacion.png",
	"La raiz cuadrada.png",
	"La raiz cubica.png",
	"La resta.png",
	"La suma.png",
	"Las fracciones.png",
	"Las Incognitas.png",
	"Las Raices.png",
	"Los decimales.png",
	"Los exponentes.png",
	"Los Impares.png",
	"Los Pares.png",
	"N.png",
	"Q.png",
	"R.png",
	"UNO.png",
	"Z.png",
}
